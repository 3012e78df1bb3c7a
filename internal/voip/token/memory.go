package token

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore keeps the token in process.
type MemoryStore struct {
	mu        sync.Mutex
	token     []byte
	observers map[chan []byte]struct{}
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{observers: make(map[chan []byte]struct{})}
}

func (m *MemoryStore) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return nil, ErrNoToken
	}
	return bytes.Clone(m.token), nil
}

func (m *MemoryStore) Save(ctx context.Context, token []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = bytes.Clone(token)
	for ch := range m.observers {
		// Observers only care about the latest value.
		select {
		case <-ch:
		default:
		}
		ch <- bytes.Clone(token)
	}
	return nil
}

func (m *MemoryStore) Observe(ctx context.Context) (<-chan []byte, error) {
	ch := make(chan []byte, 1)
	m.mu.Lock()
	m.observers[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.observers, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
