package datastore

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// MMapBackend is the columnar, memory-mapped tier: one file per
// dataset, columns stored contiguously so a read maps the file once
// and slices column runs directly out of the mapping. It is the first
// backend tried in the fallback chain — fastest when the dataset is
// resident on local disk.
//
// File layout: uint32 column count; per column a uint16 name length
// followed by the name bytes; a uint64 row count; then, column-major,
// rowCount float64s per column.
type MMapBackend struct {
	dir string
	mu  sync.Mutex
}

func NewMMapBackend(dir string) *MMapBackend {
	return &MMapBackend{dir: dir}
}

func (b *MMapBackend) Name() string { return "mmap" }

func (b *MMapBackend) Open(context.Context) error {
	return os.MkdirAll(b.dir, 0o755)
}

func (b *MMapBackend) Close() error { return nil }

func (b *MMapBackend) path(datasetID string) string {
	return filepath.Join(b.dir, datasetID+".col")
}

func (b *MMapBackend) Retrieve(_ context.Context, datasetID string) (*Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.path(datasetID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrBackendUnavailable, datasetID, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrBackendUnavailable, datasetID, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrBackendUnavailable, datasetID, err)
	}
	defer unix.Munmap(data)

	block, err := decodeColumnar(datasetID, data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrBackendUnavailable, datasetID, err)
	}
	block.Meta.Source = b.Name()
	block.Meta.SizeBytes = len(data)
	return block, nil
}

func (b *MMapBackend) Store(_ context.Context, datasetID string, block *Block) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := encodeColumnar(block)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrBackendUnavailable, datasetID, err)
	}
	tmp := b.path(datasetID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrBackendUnavailable, datasetID, err)
	}
	return os.Rename(tmp, b.path(datasetID))
}

func columnNames(rows []Row) []string {
	seen := make(map[string]bool)
	var names []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	// stable, deterministic ordering for a reproducible on-disk layout
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

func encodeColumnar(block *Block) ([]byte, error) {
	names := columnNames(block.Rows)
	numRows := len(block.Rows)

	buf := make([]byte, 0, 4+len(names)*8+8+numRows*len(names)*8)
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(names)))
	buf = append(buf, tmp4[:]...)

	for _, name := range names {
		var tmp2 [2]byte
		binary.LittleEndian.PutUint16(tmp2[:], uint16(len(name)))
		buf = append(buf, tmp2[:]...)
		buf = append(buf, name...)
	}

	var tmp8 [8]byte
	binary.LittleEndian.PutUint64(tmp8[:], uint64(numRows))
	buf = append(buf, tmp8[:]...)

	for _, name := range names {
		for _, row := range block.Rows {
			binary.LittleEndian.PutUint64(tmp8[:], float64bits(row[name]))
			buf = append(buf, tmp8[:]...)
		}
	}
	return buf, nil
}

func decodeColumnar(datasetID string, data []byte) (*Block, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("truncated header")
	}
	off := 0
	numCols := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4

	names := make([]string, numCols)
	for i := 0; i < numCols; i++ {
		if off+2 > len(data) {
			return nil, fmt.Errorf("truncated column name length")
		}
		nameLen := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if off+nameLen > len(data) {
			return nil, fmt.Errorf("truncated column name")
		}
		names[i] = string(data[off : off+nameLen])
		off += nameLen
	}

	if off+8 > len(data) {
		return nil, fmt.Errorf("truncated row count")
	}
	numRows := int(binary.LittleEndian.Uint64(data[off:]))
	off += 8

	rows := make([]Row, numRows)
	for i := range rows {
		rows[i] = make(Row, numCols)
	}
	for _, name := range names {
		for r := 0; r < numRows; r++ {
			if off+8 > len(data) {
				return nil, fmt.Errorf("truncated column %s at row %d", name, r)
			}
			rows[r][name] = float64frombits(binary.LittleEndian.Uint64(data[off:]))
			off += 8
		}
	}
	return &Block{DatasetID: datasetID, Rows: rows}, nil
}
