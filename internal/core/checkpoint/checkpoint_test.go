package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	storage_go "github.com/supabase-community/storage-go"

	"contentscore/internal/core/result"
)

func records(n int) []result.Record {
	out := make([]result.Record, n)
	for i := range out {
		out[i] = result.Record{URL: "https://a.test/" + string(rune('a'+i)), Status: result.StatusSuccess, Cw: 70}
	}
	return out
}

func readRecords(t *testing.T, path string) []result.Record {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []result.Record
	require.NoError(t, json.Unmarshal(b, &got))
	return got
}

func TestWriterPersistsAndOverwrites(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(NewFileStore(dir))
	key := Key("run-1", time.UnixMilli(1700000000000))

	w.Persist(context.Background(), records(3), key)
	w.Persist(context.Background(), records(3), key)

	path := filepath.Join(dir, "checkpoints", "run-1", "results-incremental-1700000000000.json")
	assert.Len(t, readRecords(t, path), 3)

	w.Persist(context.Background(), records(5), key)
	assert.Len(t, readRecords(t, path), 5)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriterSwallowsStoreErrors(t *testing.T) {
	w := NewWriter(NewFileStore(t.TempDir()))
	assert.NotPanics(t, func() {
		w.Persist(context.Background(), records(1), "../escape.json")
	})
}

type panicStore struct{}

func (panicStore) Put(context.Context, string, []byte) error { panic("disk on fire") }

func TestWriterRecoversStorePanics(t *testing.T) {
	w := NewWriter(panicStore{})
	assert.NotPanics(t, func() {
		w.Persist(context.Background(), records(1), "k.json")
	})
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	for _, key := range []string{"", "..", "../x.json", "/abs.json"} {
		assert.ErrorIs(t, fs.Put(context.Background(), key, []byte("[]")), errInvalidKey, key)
	}
}

type fakeUploader struct {
	err    error
	bucket string
	path   string
	body   []byte
	upsert bool
}

func (f *fakeUploader) UploadFile(bucket, path string, data io.Reader, opts ...storage_go.FileOptions) (storage_go.FileUploadResponse, error) {
	f.bucket, f.path = bucket, path
	f.body, _ = io.ReadAll(data)
	if len(opts) > 0 && opts[0].Upsert != nil {
		f.upsert = *opts[0].Upsert
	}
	return storage_go.FileUploadResponse{}, f.err
}

func TestSupabaseStoreUploadsWithUpsert(t *testing.T) {
	up := &fakeUploader{}
	s := newSupabaseStore(up, SupabaseOptions{Bucket: "checkpoints"})

	require.NoError(t, s.Put(context.Background(), "checkpoints/r/x.json", []byte("[]")))
	assert.Equal(t, "checkpoints", up.bucket)
	assert.Equal(t, "checkpoints/r/x.json", up.path)
	assert.Equal(t, "[]", string(up.body))
	assert.True(t, up.upsert)
}

func TestSupabaseStoreFallsBackLocally(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{err: errors.New("bucket not found")}
	s := newSupabaseStore(up, SupabaseOptions{Bucket: "b", AppEnv: "development", Fallback: NewFileStore(dir)})

	require.NoError(t, s.Put(context.Background(), "r/x.json", []byte("[]")))
	_, err := os.Stat(filepath.Join(dir, "r", "x.json"))
	assert.NoError(t, err)
}

func TestSupabaseStoreStrictInProduction(t *testing.T) {
	up := &fakeUploader{err: errors.New("bucket not found")}
	s := newSupabaseStore(up, SupabaseOptions{Bucket: "b", AppEnv: "production", Fallback: NewFileStore(t.TempDir())})

	assert.Error(t, s.Put(context.Background(), "r/x.json", []byte("[]")))
}

func TestNewSupabaseStoreRequiresCredentials(t *testing.T) {
	_, err := NewSupabaseStore(SupabaseOptions{Bucket: "b"})
	assert.Error(t, err)
}
