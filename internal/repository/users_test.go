package repository_test

import (
	"context"
	"testing"
	"time"

	"accounts/backend/internal/cache"
	"accounts/backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_FindByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "a@example.com")

	got, err := f.repo.FindByEmail(ctx, "a@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = f.repo.FindByEmail(ctx, "missing@example.com", nil)
	assert.ErrorIs(t, err, repository.ErrEntityNotFound)
}

func TestUserRepository_FindByEmailCachesProjection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "a@example.com")
	dir := cache.NewDirective(time.Hour, "user", "email", u.Email)

	fromStore, err := f.repo.FindByEmail(ctx, u.Email, dir)
	require.NoError(t, err)
	assert.Equal(t, "hash", fromStore.PasswordHash)

	fromCache, err := f.repo.FindByEmail(ctx, u.Email, dir)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.users.reads.Load())
	assert.Equal(t, u.ID, fromCache.ID)
	assert.Equal(t, u.Email, fromCache.Email)
	assert.Equal(t, u.Name, fromCache.Name)
	assert.Empty(t, fromCache.PasswordHash)

	raw, err := f.client.Get(ctx, dir.Key)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "password_hash")
}
