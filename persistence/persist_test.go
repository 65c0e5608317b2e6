package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retrograde/coordinator"
)

type fakeUploader struct {
	uri string
	err error
}

func (f fakeUploader) Upload(ctx context.Context, localPath, remoteURI string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.uri, nil
}

func TestPersistWritesLocalFile(t *testing.T) {
	dir := t.TempDir()
	summary := &coordinator.RunSummary{Total: 3, Succeeded: 3}

	res, err := Persist(context.Background(), "run-1", summary, Config{LocalDir: dir})
	require.NoError(t, err)
	assert.FileExists(t, res.LocalPath)
	assert.Equal(t, filepath.Join(dir, "run-1.json"), res.LocalPath)

	raw, err := os.ReadFile(res.LocalPath)
	require.NoError(t, err)
	var rec record
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, 3, rec.Summary.Total)
}

func TestPersistNoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	_, err := Persist(context.Background(), "run-2", &coordinator.RunSummary{}, Config{LocalDir: dir})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "run-2.json", entries[0].Name())
}

func TestPersistYAMLFormat(t *testing.T) {
	dir := t.TempDir()
	res, err := Persist(context.Background(), "run-3", &coordinator.RunSummary{Total: 1}, Config{LocalDir: dir, Format: FormatYAML})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-3.yaml"), res.LocalPath)
}

func TestPersistSkipsUploadWhenNotConfigured(t *testing.T) {
	dir := t.TempDir()
	res, err := Persist(context.Background(), "run-4", &coordinator.RunSummary{}, Config{LocalDir: dir})
	require.NoError(t, err)
	assert.Empty(t, res.RemoteURI)
	assert.Empty(t, res.UploadErr)
}

func TestPersistUploadSuccessPopulatesRemoteURI(t *testing.T) {
	dir := t.TempDir()
	res, err := Persist(context.Background(), "run-5", &coordinator.RunSummary{}, Config{
		LocalDir:  dir,
		RemoteURI: "s3://bucket/run-5.json",
		Uploader:  fakeUploader{uri: "s3://bucket/run-5.json"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/run-5.json", res.RemoteURI)
	assert.Empty(t, res.UploadErr)
}

func TestPersistUploadFailureNeverFailsTheCall(t *testing.T) {
	dir := t.TempDir()
	res, err := Persist(context.Background(), "run-6", &coordinator.RunSummary{}, Config{
		LocalDir:  dir,
		RemoteURI: "s3://bucket/run-6.json",
		Uploader:  fakeUploader{err: errors.New("network down")},
	})
	require.NoError(t, err)
	assert.Empty(t, res.RemoteURI)
	assert.NotEmpty(t, res.UploadErr)
	assert.FileExists(t, res.LocalPath) // local copy survives regardless
}

func TestParseS3URIRejectsNonS3Scheme(t *testing.T) {
	_, _, err := parseS3URI("https://example.com/foo")
	assert.Error(t, err)
}

func TestParseS3URISplitsBucketAndKey(t *testing.T) {
	bucket, key, err := parseS3URI("s3://my-bucket/path/to/run.json")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "path/to/run.json", key)
}
