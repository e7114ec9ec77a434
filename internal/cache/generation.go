package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const generationTTL = 24 * time.Hour

// Generations keeps one random token per namespace. Keys derived from the current
// token go stale together when the namespace is bumped. A namespace whose token
// is missing gets a fresh one, so a lost token never revives older keys.
type Generations struct {
	client Client
}

// NewGenerations builds a tracker over client. With a nil client every call sees
// a new generation.
func NewGenerations(client Client) *Generations {
	if client == nil {
		client = Nop{}
	}
	return &Generations{client: client}
}

// Current returns the namespace's token, creating one when none is stored.
func (g *Generations) Current(ctx context.Context, namespace string) string {
	key := Key(namespace, "generation")
	if raw, err := g.client.Get(ctx, key); err == nil && len(raw) > 0 {
		return string(raw)
	} else if err != nil && !errors.Is(err, ErrMiss) {
		return uuid.NewString()
	}
	token := uuid.NewString()
	_ = g.client.Set(ctx, key, []byte(token), generationTTL)
	return token
}

// Bump replaces the namespace's token.
func (g *Generations) Bump(ctx context.Context, namespace string) error {
	return g.client.Set(ctx, Key(namespace, "generation"), []byte(uuid.NewString()), generationTTL)
}

// PageKey derives a page key under the namespace's current generation.
func (g *Generations) PageKey(ctx context.Context, namespace string, skip, take int) string {
	return PageKey(Key(namespace, g.Current(ctx, namespace)), skip, take)
}
