package persistence

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader implements Uploader against an S3-compatible object store,
// mirroring the S3 client construction in datastore's S3ObjectBackend.
type S3Uploader struct {
	client *s3.Client
}

// NewS3Uploader loads the default AWS config (environment/shared
// config/instance role, in that order) and constructs the client once.
func NewS3Uploader(ctx context.Context) (*S3Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("persistence: loading aws config: %w", err)
	}
	return &S3Uploader{client: s3.NewFromConfig(cfg)}, nil
}

// Upload reads localPath and PUTs it to remoteURI, which must be of the
// form s3://bucket/key. The returned URI echoes remoteURI unchanged on
// success.
func (u *S3Uploader) Upload(ctx context.Context, localPath, remoteURI string) (string, error) {
	bucket, key, err := parseS3URI(remoteURI)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("persistence: reading local file: %w", err)
	}
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(string(data)),
	})
	if err != nil {
		return "", fmt.Errorf("persistence: uploading to %s: %w", remoteURI, err)
	}
	return remoteURI, nil
}

func parseS3URI(remoteURI string) (bucket, key string, err error) {
	u, err := url.Parse(remoteURI)
	if err != nil {
		return "", "", fmt.Errorf("persistence: invalid remote uri %q: %w", remoteURI, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("persistence: unsupported remote scheme %q (want s3://)", u.Scheme)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
