package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/antoineross/supabase-go"
	storage_go "github.com/supabase-community/storage-go"

	"contentscore/internal/logger"
)

// Store persists an opaque blob under a key, replacing any previous value.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
}

var errInvalidKey = errors.New("invalid checkpoint key")

// FileStore writes blobs under a root directory using temp file + rename so a
// reader never observes a partial file.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore { return &FileStore{root: root} }

func (f *FileStore) path(key string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(key))
	if rel == "." || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", errInvalidKey, key)
	}
	return filepath.Join(f.root, rel), nil
}

func (f *FileStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := f.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

type uploader interface {
	UploadFile(bucketId string, relativePath string, data io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
}

// SupabaseStore uploads checkpoints to a storage bucket with upsert, falling
// back to a local store when the upload fails outside production.
type SupabaseStore struct {
	storage  uploader
	bucket   string
	fallback Store
	strict   bool
	log      *logger.Logger
}

type SupabaseOptions struct {
	URL        string
	ServiceKey string
	Bucket     string
	AppEnv     string
	Fallback   Store
}

func NewSupabaseStore(opts SupabaseOptions) (*SupabaseStore, error) {
	if opts.URL == "" || opts.ServiceKey == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("supabase checkpoint store requires SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY and SUPABASE_CHECKPOINT_BUCKET")
	}
	client, err := supabase.NewClient(opts.URL, opts.ServiceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("init supabase client: %w", err)
	}
	return newSupabaseStore(client.Storage, opts), nil
}

func newSupabaseStore(storage uploader, opts SupabaseOptions) *SupabaseStore {
	return &SupabaseStore{
		storage:  storage,
		bucket:   opts.Bucket,
		fallback: opts.Fallback,
		strict:   opts.AppEnv == "production",
		log:      logger.New("CheckpointStore"),
	}
}

func (s *SupabaseStore) Put(ctx context.Context, key string, data []byte) error {
	contentType := "application/json"
	upsert := true
	_, err := s.storage.UploadFile(s.bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err == nil {
		return nil
	}
	s.log.LogWarnf("Supabase upload of %s failed: %v", key, err)
	if s.strict || s.fallback == nil {
		return fmt.Errorf("upload checkpoint %s: %w", key, err)
	}
	return s.fallback.Put(ctx, key, data)
}
