// Package audit implements the Audit Trail (spec C13): an append-only,
// hash-chained JSONL log of every turn's AuditRecord, so a completed run
// can be replayed and checked for tampering. Modeled on the teacher's
// Manager.checkpointLoop buffered-ticker file writer, generalized from
// a plain newline log to a hash-chained one and from periodic flush to
// flush-per-entry (tamper evidence requires every entry land before the
// next one's hash is computed, which rules out batching writes).
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Entry is one hash-chained audit log line.
type Entry struct {
	Seq       uint64    `json:"seq"`
	Turn      uint64    `json:"turn"`
	BatchID   string    `json:"batch_id"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	PrevHash  uint64    `json:"prev_hash"`
	Hash      uint64    `json:"hash"`
}

// Writer appends hash-chained entries to a single JSONL file. Safe for
// concurrent use by multiple coordinator workers — each Append call
// holds the writer's lock for its full duration, so the hash chain
// stays well-defined despite out-of-order arrival across workers (seq
// is assigned under the same lock, so it still reflects write order,
// not batch or turn order).
type Writer struct {
	mu       sync.Mutex
	file     *os.File
	buf      *bufio.Writer
	lastHash uint64
	seq      uint64
}

// Open opens (creating if absent) the log at path for appending. An
// existing log is replayed first so lastHash and seq continue the chain
// correctly across process restarts.
func Open(path string) (*Writer, error) {
	existing, err := Replay(path)
	if err != nil {
		return nil, fmt.Errorf("audit: replaying existing log: %w", err)
	}
	var lastHash uint64
	var seq uint64
	if n := len(existing); n > 0 {
		lastHash = existing[n-1].Hash
		seq = existing[n-1].Seq
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: opening log: %w", err)
	}
	return &Writer{file: f, buf: bufio.NewWriter(f), lastHash: lastHash, seq: seq}, nil
}

// Append writes one entry, chaining it to the previous entry's hash,
// and flushes immediately so the on-disk file never lags the in-memory
// chain state.
func (w *Writer) Append(turn uint64, batchID string, payload any) (Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	e := Entry{
		Seq:       w.seq,
		Turn:      turn,
		BatchID:   batchID,
		Payload:   payload,
		Timestamp: time.Now(),
		PrevHash:  w.lastHash,
	}
	body, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: encoding entry: %w", err)
	}
	e.Hash = chainHash(w.lastHash, body)

	withHash, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: encoding hashed entry: %w", err)
	}
	if _, err := w.buf.Write(withHash); err != nil {
		return Entry{}, fmt.Errorf("audit: writing entry: %w", err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return Entry{}, fmt.Errorf("audit: writing newline: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return Entry{}, fmt.Errorf("audit: flushing entry: %w", err)
	}

	w.lastHash = e.Hash
	return e, nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// chainHash is xxhash over prevHash's bytes followed by the entry's
// pre-hash JSON encoding — the hash-chain construction the spec
// requires for tamper evidence (altering any entry changes its hash,
// which no longer matches the next entry's recorded PrevHash).
func chainHash(prevHash uint64, body []byte) uint64 {
	h := xxhash.New()
	var prevBuf [8]byte
	for i := 0; i < 8; i++ {
		prevBuf[i] = byte(prevHash >> (8 * i))
	}
	_, _ = h.Write(prevBuf[:])
	_, _ = h.Write(body)
	return h.Sum64()
}
