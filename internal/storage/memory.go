package storage

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store used in tests and local runs.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	baseURL string
	removed []string
}

type memoryObject struct {
	data        []byte
	contentType string
}

var _ Store = (*Memory)(nil)

func NewMemory(baseURL string) *Memory {
	if baseURL == "" {
		baseURL = "http://localhost/blobs"
	}
	return &Memory{objects: make(map[string]memoryObject), baseURL: strings.TrimRight(baseURL, "/")}
}

func (m *Memory) Upload(_ context.Context, key string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	return nil
}

func (m *Memory) PublicURL(key string) string { return m.baseURL + "/" + key }

func (m *Memory) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
		m.removed = append(m.removed, k)
	}
	return nil
}

// Get returns an object's bytes.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	return o.data, ok
}

// Keys lists stored keys in order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Removed lists every key passed to Remove.
func (m *Memory) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}
