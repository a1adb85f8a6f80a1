package kv

import (
	"context"
	"sync"
)

// Memory is an in-process Store with per-key mutual exclusion.
// It is the test double and the storage for single-process deployments
// that do not configure Postgres
type Memory struct {
	mu    sync.Mutex // guards data and locks maps
	data  map[string][]byte
	locks map[string]*sync.Mutex
}

// NewMemory constructs an empty Memory store
func NewMemory() *Memory {
	return &Memory{
		data:  make(map[string][]byte),
		locks: make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex owning key, creating it on first use
func (m *Memory) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Get implements Store
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

// Set implements Store
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	l := m.keyLock(key)
	l.Lock()
	defer l.Unlock()
	m.put(key, value)
	return nil
}

// Update implements Store; fn runs under the key's mutex
func (m *Memory) Update(ctx context.Context, key string, fn UpdateFn) error {
	l := m.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	cur, found := m.data[key]
	m.mu.Unlock()

	next, err := fn(cur, found)
	if IsSkip(err) {
		return nil
	}
	if err != nil {
		return err
	}
	m.put(key, next)
	return nil
}

func (m *Memory) put(key string, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.mu.Lock()
	m.data[key] = cp
	m.mu.Unlock()
}
