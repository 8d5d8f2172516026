package store

import (
	"context"
	"sync"

	"github.com/feedmeta/feedmeta/internal/core"
)

// MemoryStore keeps the state document in process memory. Documents are
// stored encoded so callers never share maps with the store.
type MemoryStore struct {
	mu      sync.Mutex
	body    []byte
	saveErr error
	saves   int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWithBody seeds the store with a raw document.
func NewMemoryStoreWithBody(body []byte) *MemoryStore {
	return &MemoryStore{body: append([]byte(nil), body...)}
}

// LoadState follows the same materialise and version rules as Store.
func (m *MemoryStore) LoadState(ctx context.Context) (*core.State, error) {
	m.mu.Lock()
	body := m.body
	m.mu.Unlock()

	state, needsSave := decodeDocument(body)
	if needsSave {
		if err := m.SaveState(ctx, state); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// SaveState replaces the stored document.
func (m *MemoryStore) SaveState(_ context.Context, state *core.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}
	body, err := encodeDocument(state)
	if err != nil {
		return err
	}
	m.body = body
	m.saves++
	return nil
}

// FailSaves makes every later SaveState return err; nil restores saving.
func (m *MemoryStore) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// Saves counts successful writes.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Body returns a copy of the stored document.
func (m *MemoryStore) Body() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.body...)
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
