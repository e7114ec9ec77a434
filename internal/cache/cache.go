// Package cache holds the key/value cache contract used for cache-aside reads and writes,
// the per-call Directive that opts an operation into caching, and the client adapters.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMiss is returned by Client.Get when the key holds no live value.
var ErrMiss = errors.New("cache miss")

// KeySeparator joins cache key segments.
const KeySeparator = ":"

// Client is a key/value store with per-entry expiration.
// Implementations only guarantee single-key, single-operation atomicity.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Directive opts a single repository call into cache-aside behaviour.
// A nil *Directive means the call bypasses the cache entirely.
type Directive struct {
	Key string
	TTL time.Duration
}

// NewDirective builds a directive whose key is the parts joined with KeySeparator.
func NewDirective(ttl time.Duration, parts ...any) *Directive {
	return &Directive{Key: Key(parts...), TTL: ttl}
}

// Key joins the string form of each part with KeySeparator.
func Key(parts ...any) string {
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		segments = append(segments, fmt.Sprint(part))
	}
	return strings.Join(segments, KeySeparator)
}

// PageKey derives a key that is unique per (skip, take) window.
func PageKey(prefix string, skip, take int) string {
	return Key(prefix, "page", skip, take)
}

// Nop is a Client that stores nothing and always misses.
type Nop struct{}

var _ Client = Nop{}

func (Nop) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }

func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (Nop) Delete(context.Context, string) error { return nil }
