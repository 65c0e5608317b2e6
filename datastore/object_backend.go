package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3ObjectBackend is the last tier in the fallback chain: object
// storage, reached only when both the local mmap and row-oriented
// tiers fail to serve a dataset (e.g. a fresh worker with nothing
// cached locally yet, or a dataset authored by another run).
type S3ObjectBackend struct {
	bucket string
	prefix string
	client *s3.Client
}

// S3ObjectBackendOptions configures an S3ObjectBackend. Only Bucket and
// Prefix are used: Region and Endpoint are not applied, since Open loads
// the default AWS configuration, so the region and endpoint come from
// the environment and shared config files.
type S3ObjectBackendOptions struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

func NewS3ObjectBackend(opts S3ObjectBackendOptions) *S3ObjectBackend {
	return &S3ObjectBackend{bucket: opts.Bucket, prefix: opts.Prefix}
}

func (b *S3ObjectBackend) Name() string { return "object" }

func (b *S3ObjectBackend) Open(ctx context.Context) error {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("%w: load aws config: %v", ErrBackendUnavailable, err)
	}
	b.client = s3.NewFromConfig(cfg)
	return nil
}

func (b *S3ObjectBackend) Close() error { return nil }

func (b *S3ObjectBackend) key(datasetID string) string {
	if b.prefix == "" {
		return datasetID + ".json"
	}
	return b.prefix + "/" + datasetID + ".json"
}

func (b *S3ObjectBackend) Retrieve(ctx context.Context, datasetID string) (*Block, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(datasetID)),
	})
	if err != nil {
		var rerr *smithyhttp.ResponseError
		if errors.As(err, &rerr) && rerr.HTTPStatusCode() == 404 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get %s: %v", ErrBackendUnavailable, datasetID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body %s: %v", ErrBackendUnavailable, datasetID, err)
	}
	var block Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrBackendUnavailable, datasetID, err)
	}
	block.Meta.Source = b.Name()
	block.Meta.SizeBytes = len(data)
	return &block, nil
}

func (b *S3ObjectBackend) Store(ctx context.Context, datasetID string, block *Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrBackendUnavailable, datasetID, err)
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(datasetID)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrBackendUnavailable, datasetID, err)
	}
	return nil
}
