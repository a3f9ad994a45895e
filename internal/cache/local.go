package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// LocalProvider is an in-process LRU cache. Entries expire after the provider
// TTL or the per-call TTL, whichever is shorter.
type LocalProvider struct {
	lru *expirable.LRU[string, localEntry]
	now func() time.Time
}

// NewLocalProvider creates an LRU holding at most size entries for up to ttl.
func NewLocalProvider(size int, ttl time.Duration) *LocalProvider {
	if size <= 0 {
		size = 1024
	}
	return &LocalProvider{
		lru: expirable.NewLRU[string, localEntry](size, nil, ttl),
		now: time.Now,
	}
}

// Get implements Provider.
func (p *LocalProvider) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := p.lru.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && p.now().After(entry.expiresAt) {
		p.lru.Remove(key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), entry.value...), nil
}

// Set implements Provider.
func (p *LocalProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := localEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = p.now().Add(ttl)
	}
	p.lru.Add(key, entry)
	return nil
}

// Del implements Provider.
func (p *LocalProvider) Del(_ context.Context, key string) error {
	p.lru.Remove(key)
	return nil
}

// Len reports the number of cached entries, including ones not yet purged.
func (p *LocalProvider) Len() int {
	return p.lru.Len()
}

// Close purges the cache.
func (p *LocalProvider) Close() error {
	p.lru.Purge()
	return nil
}
