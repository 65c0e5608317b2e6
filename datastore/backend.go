package datastore

import "context"

// Backend is one tier in the fallback chain: columnar mmap, row-oriented,
// or object store. Store tries each in order, falling through on
// unavailability, and records which backend actually served a block in
// BlockMeta.Source.
type Backend interface {
	Name() string
	Open(ctx context.Context) error
	Close() error
	Retrieve(ctx context.Context, datasetID string) (*Block, error)
	Store(ctx context.Context, datasetID string, block *Block) error
}
