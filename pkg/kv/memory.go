package kv

import (
	"bytes"
	"context"
	"iter"
	"slices"
	"sync"
)

// Memory is an in-memory Store for tests and ephemeral use.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key.String()] = slices.Clone(value)
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key.String())
	return nil
}

func (m *Memory) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := prefixBytes(prefix)

	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), p) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()
	slices.Sort(keys)

	return func(yield func(Entry, error) bool) {
		for _, k := range keys {
			m.mu.RLock()
			v, ok := m.data[k]
			if ok {
				v = slices.Clone(v)
			}
			m.mu.RUnlock()
			if !ok {
				continue // deleted between snapshot and yield
			}
			if !yield(Entry{Key: decode([]byte(k)), Value: v}, nil) {
				return
			}
		}
	}
}

func (m *Memory) Close() error {
	return nil
}
