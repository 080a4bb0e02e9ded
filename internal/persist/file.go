package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// FileStore stores each snapshot as a JSON file in a directory.
//
// Layout:
//
//	dir/
//	  user-storage.json
//	  counter-store.json
//
// Files are replaced atomically, so a crash never leaves a partial snapshot.
type FileStore struct {
	mu  sync.RWMutex
	dir string
}

// Compile-time check that FileStore satisfies Backend.
var _ Backend = (*FileStore)(nil)

// NewFileStore creates dir if needed and returns a FileStore rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store: directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load decodes the snapshot file for key into v. A missing file reports
// false with no error.
func (s *FileStore) Load(ctx context.Context, key string, v any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if err := validateKey(key); err != nil {
		return false, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(s.path(key))
	s.mu.RUnlock()

	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read snapshot %s: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}

	return true, nil
}

// Save writes v as indented JSON to the snapshot file for key.
func (s *FileStore) Save(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := renameio.WriteFile(s.path(key), data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", key, err)
	}

	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
