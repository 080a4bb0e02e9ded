package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps JSON-encoded snapshots in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// Compile-time check that MemoryStore satisfies Backend.
var _ Backend = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Load decodes the snapshot stored under key into v.
func (s *MemoryStore) Load(ctx context.Context, key string, v any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if err := validateKey(key); err != nil {
		return false, err
	}

	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}

	return true, nil
}

// Save stores a JSON encoding of v under key.
func (s *MemoryStore) Save(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := validateKey(key); err != nil {
		return err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}

	s.mu.Lock()
	s.data[key] = raw
	s.mu.Unlock()

	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
