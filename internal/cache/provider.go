package cache

import (
	"context"
	"errors"
	"time"
)

// Provider defines the minimal cache operations used by the search client.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// NoopProvider implements Provider but never stores data.
type NoopProvider struct{}

// Get always returns ErrCacheMiss.
func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

// Set discards the value and returns nil.
func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

// Del is a no-op for the noop cache.
func (NoopProvider) Del(context.Context, string) error { return nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }

// Tiered reads through a fast local tier before a shared remote tier and
// back-fills the local tier on remote hits. Writes go to both tiers.
type Tiered struct {
	Local    Provider
	Remote   Provider
	LocalTTL time.Duration
}

// NewTiered combines local and remote providers; either may be nil.
func NewTiered(local, remote Provider, localTTL time.Duration) Provider {
	switch {
	case local == nil && remote == nil:
		return NoopProvider{}
	case remote == nil:
		return local
	case local == nil:
		return remote
	}
	return &Tiered{Local: local, Remote: remote, LocalTTL: localTTL}
}

// Get implements Provider.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if value, err := t.Local.Get(ctx, key); err == nil {
		return value, nil
	}
	value, err := t.Remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = t.Local.Set(ctx, key, value, t.LocalTTL)
	return value, nil
}

// Set implements Provider. The remote error wins when both tiers fail.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	localTTL := t.LocalTTL
	if ttl > 0 && (localTTL <= 0 || ttl < localTTL) {
		localTTL = ttl
	}
	localErr := t.Local.Set(ctx, key, value, localTTL)
	if err := t.Remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return localErr
}

// Del implements Provider.
func (t *Tiered) Del(ctx context.Context, key string) error {
	return errors.Join(t.Local.Del(ctx, key), t.Remote.Del(ctx, key))
}

// Close implements Provider.
func (t *Tiered) Close() error {
	return errors.Join(t.Local.Close(), t.Remote.Close())
}
