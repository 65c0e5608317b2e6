package datastore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoRowBackend is the remote variant of the row-oriented tier,
// usable in place of BuntRowBackend when datasets are shared across
// more than one training process. Same position in the fallback chain,
// same Backend contract.
type MongoRowBackend struct {
	uri        string
	database   string
	collection string
	client     *mongo.Client
	coll       *mongo.Collection
	timeout    time.Duration
}

type MongoRowBackendOptions struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

func NewMongoRowBackend(opts MongoRowBackendOptions) *MongoRowBackend {
	collection := opts.Collection
	if collection == "" {
		collection = "dataset_blocks"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MongoRowBackend{uri: opts.URI, database: opts.Database, collection: collection, timeout: timeout}
}

func (b *MongoRowBackend) Name() string { return "row" }

func (b *MongoRowBackend) Open(ctx context.Context) error {
	client, err := mongo.Connect(options.Client().ApplyURI(b.uri))
	if err != nil {
		return fmt.Errorf("%w: connect mongo: %v", ErrBackendUnavailable, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return fmt.Errorf("%w: ping mongo: %v", ErrBackendUnavailable, err)
	}
	b.client = client
	b.coll = client.Database(b.database).Collection(b.collection)
	return nil
}

func (b *MongoRowBackend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Disconnect(context.Background())
}

type blockDocument struct {
	DatasetID string `bson:"dataset_id"`
	Rows      []Row  `bson:"rows"`
}

func (b *MongoRowBackend) Retrieve(ctx context.Context, datasetID string) (*Block, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var doc blockDocument
	err := b.coll.FindOne(ctx, bson.M{"dataset_id": datasetID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find %s: %v", ErrBackendUnavailable, datasetID, err)
	}
	return &Block{
		DatasetID: doc.DatasetID,
		Rows:      doc.Rows,
		Meta:      BlockMeta{Source: b.Name()},
	}, nil
}

func (b *MongoRowBackend) Store(ctx context.Context, datasetID string, block *Block) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	filter := bson.M{"dataset_id": datasetID}
	update := bson.M{"$set": bson.M{"dataset_id": datasetID, "rows": block.Rows}}
	_, err := b.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrBackendUnavailable, datasetID, err)
	}
	return nil
}
