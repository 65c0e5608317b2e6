package datastore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/buntdb"
)

// BuntRowBackend is the embedded row-oriented tier: a buntdb key-value
// store holding one JSON-encoded Block per dataset. It is tried after
// the mmap backend and before the object store — no server process, no
// network round trip, but durable across process restarts (unlike the
// mmap backend's local-disk-only columnar file, this also works
// in-memory for ephemeral runs when path is ":memory:").
type BuntRowBackend struct {
	path string
	db   *buntdb.DB
}

func NewBuntRowBackend(path string) *BuntRowBackend {
	return &BuntRowBackend{path: path}
}

func (b *BuntRowBackend) Name() string { return "row" }

func (b *BuntRowBackend) Open(context.Context) error {
	if b.db != nil {
		return nil
	}
	db, err := buntdb.Open(b.path)
	if err != nil {
		return fmt.Errorf("%w: open buntdb: %v", ErrBackendUnavailable, err)
	}
	b.db = db
	return nil
}

func (b *BuntRowBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *BuntRowBackend) Retrieve(_ context.Context, datasetID string) (*Block, error) {
	var raw string
	err := b.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(datasetID)
		if err != nil {
			return err
		}
		raw = val
		return nil
	})
	if err == buntdb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrBackendUnavailable, datasetID, err)
	}

	var block Block
	if jsonErr := json.Unmarshal([]byte(raw), &block); jsonErr != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrBackendUnavailable, datasetID, jsonErr)
	}
	block.Meta.Source = b.Name()
	block.Meta.SizeBytes = len(raw)
	return &block, nil
}

func (b *BuntRowBackend) Store(_ context.Context, datasetID string, block *Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrBackendUnavailable, datasetID, err)
	}
	err = b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(datasetID, string(data), nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrBackendUnavailable, datasetID, err)
	}
	return nil
}
