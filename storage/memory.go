package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore giữ blob trong RAM; dùng khi chạy local (BLOB_PROVIDER=memory) và trong test
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
	types   map[string]string
}

func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://blobs"
	}
	return &MemoryStore{baseURL: baseURL, objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *MemoryStore) Provider() string { return "memory" }

func (m *MemoryStore) Upload(ctx context.Context, name string, r io.Reader, contentType string) (Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Object{}, err
	}
	m.mu.Lock()
	m.objects[name] = data
	m.types[name] = contentType
	m.mu.Unlock()
	url, _ := m.SignedURL(ctx, name)
	return Object{Name: name, URL: url}, nil
}

func (m *MemoryStore) SignedURL(ctx context.Context, name string) (string, error) {
	return fmt.Sprintf("%s/%s?sig=test", m.baseURL, name), nil
}

func (m *MemoryStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	delete(m.objects, name)
	delete(m.types, name)
	m.mu.Unlock()
	return nil
}

// Get trả về nội dung + content type của blob
func (m *MemoryStore) Get(name string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[name]
	return data, m.types[name], ok
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
