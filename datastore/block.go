// Package datastore implements the Data Store (spec C7): a
// bounded-memory, prefetching row provider over a fallback chain of
// backends (columnar mmap, row-oriented embedded/remote, object
// store), fronted by a byte-budget LRU cache. Modeled structurally on
// the teacher's resources.Manager (LRU + spill-to-disk), generalized
// from a single in-process page cache to a multi-backend dataset
// store.
package datastore

import "time"

// Row is one record of a dataset: a flat mapping of column name to
// numeric value, matching the variable/capital/overlay shape
// worldstate.WorldState works with.
type Row map[string]float64

// BlockMeta accompanies every block returned by the store, identifying
// which backend actually served it.
type BlockMeta struct {
	Source    string // "mmap" | "row" | "object"
	SizeBytes int
	FetchedAt time.Time
}

// Block is a bounded run of rows for one dataset, either the full
// dataset (when small) or one chunk of a stream.
type Block struct {
	DatasetID string
	Rows      []Row
	Meta      BlockMeta
}

func (b *Block) approxBytes() int {
	if b.Meta.SizeBytes > 0 {
		return b.Meta.SizeBytes
	}
	n := 0
	for _, row := range b.Rows {
		n += len(row) * 16 // rough per-column (key overhead + float64)
	}
	return n
}

// Filter restricts the rows of a dataset. Only Variables is applied:
// each row is cut down to the named columns, in-process, after the
// backend has returned the dataset. WindowStart and WindowEnd are
// carried but not applied, and no backend receives the filter.
type Filter struct {
	Variables     []string
	WindowStart   float64
	WindowEnd     float64
}

func (f Filter) apply(rows []Row) []Row {
	if len(f.Variables) == 0 {
		return rows
	}
	want := make(map[string]bool, len(f.Variables))
	for _, v := range f.Variables {
		want[v] = true
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		filtered := make(Row, len(want))
		for k, v := range row {
			if want[k] {
				filtered[k] = v
			}
		}
		out = append(out, filtered)
	}
	return out
}
