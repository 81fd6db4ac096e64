package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

type object struct {
	data        []byte
	contentType string
}

// Memory is an in-process store used by tests and throwaway instances.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]object
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]object)}
}

func (m *Memory) Driver() string { return DriverMemory }

func (m *Memory) Put(_ context.Context, key string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading blob: %w", err)
	}
	m.mu.Lock()
	m.objects[key] = object{data: data, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, "", ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.contentType, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *Memory) Move(_ context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[from]
	if !ok {
		return ErrNotFound
	}
	m.objects[to] = obj
	delete(m.objects, from)
	return nil
}

// Has reports whether key exists.
func (m *Memory) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}
