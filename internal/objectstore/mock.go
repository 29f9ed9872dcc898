package objectstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mock is an in-memory Store used by pipeline and attachment tests.
type Mock struct {
	mu      sync.Mutex
	objects map[string][]byte
	FailPut bool
	FailGet bool
}

// NewMock returns an empty in-memory store.
func NewMock() *Mock {
	return &Mock{objects: map[string][]byte{}}
}

func objKey(bucket, key string) string { return bucket + "/" + key }

func (m *Mock) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if m.FailPut {
		return fmt.Errorf("mock put failure")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(body))
	copy(cp, body)
	m.objects[objKey(bucket, key)] = cp
	return nil
}

func (m *Mock) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if m.FailGet {
		return nil, fmt.Errorf("mock get failure")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("object not found: %s/%s", bucket, key)
	}
	return data, nil
}

func (m *Mock) HeadSize(ctx context.Context, bucket, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objKey(bucket, key)]
	if !ok {
		return 0, false, nil
	}
	return int64(len(data)), true, nil
}

func (m *Mock) Presign(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://mock.local/%s/%s?expires=%d", bucket, key, int64(expiry.Seconds())), nil
}

func (m *Mock) DeleteObjects(ctx context.Context, bucket string, keys []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, k := range keys {
		if _, ok := m.objects[objKey(bucket, k)]; ok {
			delete(m.objects, objKey(bucket, k))
			count++
		}
	}
	return count, nil
}