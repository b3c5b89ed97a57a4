package cache

import (
	"context"
	"io"
	"strings"
	"sync"
)

// InMemoryCache keeps documents in process memory. It also counts writes per
// key so callers can check how often a document was rewritten.
type InMemoryCache struct {
	mu     sync.RWMutex
	data   map[string]string
	writes map[string]int
}

var _ Cache = (*InMemoryCache)(nil)

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data:   make(map[string]string),
		writes: make(map[string]int),
	}
}

func (c *InMemoryCache) Get(_ context.Context, key string) (io.ReadCloser, error) {
	c.mu.RLock()
	value, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(strings.NewReader(value)), nil
}

func (c *InMemoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[key]
	return ok, nil
}

func (c *InMemoryCache) Put(_ context.Context, key, value string, opts PutOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; exists && opts.Condition == PutIfNoneMatch {
		return ErrAlreadyExists
	}
	c.data[key] = value
	c.writes[key]++
	return nil
}

// Writes reports how many successful Puts key has seen.
func (c *InMemoryCache) Writes(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writes[key]
}
