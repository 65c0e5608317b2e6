package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrTampered is returned by Replay when an entry's recomputed hash
// does not match its recorded hash, or its PrevHash does not match the
// previous entry's recorded Hash.
var ErrTampered = errors.New("audit: hash chain broken")

// Replay reads every entry from path in order, verifying the hash chain
// as it goes. A missing file returns an empty, nil-error result (an
// audit log is created lazily by the first Append). The scanner
// tolerates a truncated final line (a process killed mid-write): a line
// that fails to unmarshal is silently dropped only if it is the last
// line in the file; a corrupt line anywhere else is a hard error.
func Replay(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: opening log for replay: %w", err)
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("audit: scanning log: %w", err)
	}

	var out []Entry
	var prevHash uint64
	for i, line := range lines {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			if i == len(lines)-1 {
				break // truncated last write, tolerated
			}
			return nil, fmt.Errorf("audit: decoding entry %d: %w", i, err)
		}
		if e.PrevHash != prevHash {
			return nil, fmt.Errorf("%w: entry %d prev_hash mismatch", ErrTampered, i)
		}
		if recomputeHash(e, line) != e.Hash {
			return nil, fmt.Errorf("%w: entry %d hash mismatch", ErrTampered, i)
		}
		out = append(out, e)
		prevHash = e.Hash
	}
	return out, nil
}

// recomputeHash reproduces the hash Append computed: chainHash over the
// entry's JSON encoding with Hash zeroed (the state it was in when
// originally hashed). The payload is re-encoded from its raw JSON in
// line, not from its decoded form, so a struct payload (whose field
// order and integer precision a generic decode does not keep) yields
// the same bytes Append hashed.
func recomputeHash(e Entry, line []byte) uint64 {
	var raw json.RawMessage
	e.Payload = &raw
	if err := json.Unmarshal(line, &e); err != nil {
		return 0
	}
	e.Hash = 0
	body, err := json.Marshal(e)
	if err != nil {
		return 0
	}
	return chainHash(e.PrevHash, body)
}
