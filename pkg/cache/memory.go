package cache

import (
	"context"
	"sync"
	"time"
)

type item struct {
	value  []byte
	expire time.Time
}

// Memory is an in-process cache with per-key expiration.
type Memory struct {
	items sync.Map
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewMemory creates a memory cache that drops expired items every cleanup
// interval.
func NewMemory(cleanup time.Duration) *Memory {
	m := &Memory{
		now:  time.Now,
		stop: make(chan struct{}),
	}
	go m.cleanupExpired(cleanup)
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.items.Load(key)
	if !ok {
		return nil, ErrMiss
	}
	it := v.(item)
	if !it.expire.IsZero() && m.now().After(it.expire) {
		m.items.Delete(key)
		return nil, ErrMiss
	}
	return it.value, nil
}

// Set stores a value. A zero ttl never expires.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	it := item{value: value}
	if ttl > 0 {
		it.expire = m.now().Add(ttl)
	}
	m.items.Store(key, it)
	return nil
}

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) cleanupExpired(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}
		now := m.now()
		m.items.Range(func(key, value any) bool {
			it := value.(item)
			if !it.expire.IsZero() && now.After(it.expire) {
				m.items.Delete(key)
			}
			return true
		})
	}
}
