// Package persistence implements Results Persistence (spec C12):
// writing a completed run's coordinator.RunSummary to local disk
// atomically, with an optional best-effort upload to a remote object
// store that never fails the run if it errors.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"retrograde/coordinator"
)

// Format selects the on-disk encoding for a persisted summary.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Config controls where and how results are written.
type Config struct {
	LocalDir string
	Format   Format

	// RemoteURI, if set, is handed to an Uploader after the local write
	// succeeds. A nil Uploader or empty RemoteURI skips remote upload
	// entirely.
	RemoteURI string
	Uploader  Uploader
}

func (c Config) withDefaults() Config {
	if c.LocalDir == "" {
		c.LocalDir = "./results"
	}
	if c.Format == "" {
		c.Format = FormatJSON
	}
	return c
}

// Uploader pushes a local file to a remote destination, returning the
// URI the caller should record as the canonical remote location.
type Uploader interface {
	Upload(ctx context.Context, localPath, remoteURI string) (string, error)
}

// Result is what Persist reports back: where the summary landed locally,
// and, if attempted, the outcome of the remote upload.
type Result struct {
	LocalPath string
	RemoteURI string // empty if no upload was attempted or it failed
	UploadErr string // non-empty if upload was attempted and failed
}

// record is the envelope actually written to disk — the summary plus
// enough bookkeeping to make a results file self-describing offline.
type record struct {
	RunID      string                    `json:"run_id" yaml:"run_id"`
	WrittenAt  time.Time                 `json:"written_at" yaml:"written_at"`
	Summary    *coordinator.RunSummary   `json:"summary" yaml:"summary"`
}

// Persist writes summary atomically under cfg.LocalDir (CreateTemp in
// the same directory followed by Rename, so a crash mid-write never
// leaves a partially-written results file at the final path — the same
// spill-to-disk shape the teacher's resources.Manager uses, hardened
// with the rename step the teacher's single os.WriteFile skips) and
// then, if configured, attempts a best-effort remote upload. A failed
// upload is recorded in the returned Result, never returned as an
// error: the run itself already completed, losing the remote copy does
// not warrant losing the local one too.
func Persist(ctx context.Context, runID string, summary *coordinator.RunSummary, cfg Config) (Result, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.LocalDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("persistence: creating local dir: %w", err)
	}

	rec := record{RunID: runID, WrittenAt: time.Now(), Summary: summary}
	data, err := encode(rec, cfg.Format)
	if err != nil {
		return Result{}, fmt.Errorf("persistence: encoding summary: %w", err)
	}

	finalPath := filepath.Join(cfg.LocalDir, fmt.Sprintf("%s.%s", runID, cfg.Format))
	if err := atomicWrite(cfg.LocalDir, finalPath, data); err != nil {
		return Result{}, fmt.Errorf("persistence: writing results: %w", err)
	}

	res := Result{LocalPath: finalPath}
	if cfg.RemoteURI == "" || cfg.Uploader == nil {
		return res, nil
	}
	remote, uploadErr := cfg.Uploader.Upload(ctx, finalPath, cfg.RemoteURI)
	if uploadErr != nil {
		res.UploadErr = uploadErr.Error()
		return res, nil
	}
	res.RemoteURI = remote
	return res, nil
}

func encode(rec record, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(rec)
	default:
		return json.MarshalIndent(rec, "", "  ")
	}
}

func atomicWrite(dir, finalPath string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".results-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
