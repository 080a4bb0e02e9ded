// Package persist provides snapshot persistence backends for the state
// containers.
package persist

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/vyrodovalexey/statestore/internal/state"
)

// Backend names.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// sqliteFileName is the database file created inside the data directory.
const sqliteFileName = "snapshots.db"

// Persistence errors.
var (
	ErrInvalidKey     = errors.New("invalid snapshot key")
	ErrUnknownBackend = errors.New("unknown persistence backend")
)

// keyPattern restricts keys to names that are safe as file names.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// Backend is a state.Persister that holds resources.
type Backend interface {
	state.Persister
	Close() error
}

// New creates a backend by name. dir is the data directory for the file and
// sqlite backends. BackendNone returns a nil Backend.
//
// Supported backends:
//
//	"none"   - persistence disabled
//	"memory" - in-memory (ephemeral, for testing)
//	"file"   - one JSON file per key in dir
//	"sqlite" - SQLite database at dir/snapshots.db
func New(ctx context.Context, backend, dir string) (Backend, error) {
	switch backend {
	case BackendNone, "":
		return nil, nil
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		fs, err := NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case BackendSQLite:
		db, err := NewSQLiteStore(ctx, filepath.Join(dir, sqliteFileName))
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: none, memory, file, sqlite)", ErrUnknownBackend, backend)
	}
}

// validateKey checks that key can be stored by every backend.
func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
