package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stored is one write observed by MockCacher.
type Stored struct {
	Key string
	TTL time.Duration
}

// MockCacher misses on every read unless GetFunc is set, and records every
// write so tests can assert what the handlers cached.
type MockCacher struct {
	GetFunc func(ctx context.Context, key string, dest any) error
	SetErr  error

	mu     sync.Mutex
	stored []Stored
}

func (m *MockCacher) Get(ctx context.Context, key string, dest any) error {
	if m.GetFunc == nil {
		return redis.Nil
	}
	return m.GetFunc(ctx, key, dest)
}

func (m *MockCacher) Set(_ context.Context, key string, _ any, expiration time.Duration) error {
	m.mu.Lock()
	m.stored = append(m.stored, Stored{Key: key, TTL: expiration})
	m.mu.Unlock()
	return m.SetErr
}

// Writes returns the recorded writes in call order.
func (m *MockCacher) Writes() []Stored {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Stored(nil), m.stored...)
}
