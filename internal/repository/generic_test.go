package repository_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"accounts/backend/internal/cache"
	"accounts/backend/internal/domain/account"
	"accounts/backend/internal/infrastructure/sqlite"
	"accounts/backend/internal/repository"
	"accounts/backend/internal/testsupport"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records how many reads reach the underlying store.
type countingStore[T any] struct {
	repository.Store[T]
	reads atomic.Int64
}

func (s *countingStore[T]) GetByID(ctx context.Context, id int64) (*T, error) {
	s.reads.Add(1)
	return s.Store.GetByID(ctx, id)
}

func (s *countingStore[T]) SelectAll(ctx context.Context) ([]*T, error) {
	s.reads.Add(1)
	return s.Store.SelectAll(ctx)
}

func (s *countingStore[T]) SelectWindow(ctx context.Context, skip, take int) ([]*T, error) {
	s.reads.Add(1)
	return s.Store.SelectWindow(ctx, skip, take)
}

func (s *countingStore[T]) SelectByField(ctx context.Context, field string, value any) (*T, error) {
	s.reads.Add(1)
	return s.Store.SelectByField(ctx, field, value)
}

// brokenCache fails every call.
type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) Get(context.Context, string) ([]byte, error)              { return nil, errCacheDown }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error { return errCacheDown }
func (brokenCache) Delete(context.Context, string) error                     { return errCacheDown }

type fixture struct {
	db     *sqlite.Database
	users  *countingStore[account.User]
	todos  *countingStore[account.Todo]
	client *cache.MemoryClient
	repo   *repository.UserRepository
	todo   *repository.Generic[account.Todo]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testsupport.OpenSQLite(t)

	users := &countingStore[account.User]{Store: sqlite.NewTable(db, repository.UserSchema)}
	todos := &countingStore[account.Todo]{Store: sqlite.NewTable(db, repository.TodoSchema)}
	client := cache.NewMemoryClient(cache.MemoryConfig{})

	return &fixture{
		db:     db,
		users:  users,
		todos:  todos,
		client: client,
		repo:   repository.NewUserRepository(users, client, zerolog.Nop()),
		todo:   repository.NewGeneric[account.Todo](todos, client, repository.TodoSchema, zerolog.Nop()),
	}
}

func (f *fixture) createUser(t *testing.T, email string) *account.User {
	t.Helper()
	u, err := f.repo.Create(context.Background(), &account.User{Email: email, Name: "N", PasswordHash: "hash"}, nil)
	require.NoError(t, err)
	return u
}

func TestGeneric_CreateReturnsCopyWithID(t *testing.T) {
	f := newFixture(t)
	in := &account.User{Email: "a@example.com", Name: "A"}

	out, err := f.repo.Create(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.ID)
	assert.Zero(t, in.ID)
	assert.Equal(t, "a@example.com", out.Email)
}

func TestGeneric_CreateWithDirectiveServesLaterReadsFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := cache.NewDirective(time.Minute, "user", 1)

	created, err := f.repo.Create(ctx, &account.User{Email: "a@example.com", Name: "A"}, dir)
	require.NoError(t, err)

	got, err := f.repo.FindByID(ctx, created.ID, dir)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Zero(t, f.users.reads.Load())
}

func TestGeneric_NilDirectiveBypassesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "a@example.com")

	_, err := f.repo.FindByID(ctx, u.ID, nil)
	require.NoError(t, err)
	_, err = f.repo.FindByID(ctx, u.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.users.reads.Load())

	_, err = f.client.Get(ctx, cache.Key("user", u.ID))
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestGeneric_FindByIDPopulatesCacheOnMiss(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "a@example.com")
	dir := cache.NewDirective(time.Minute, "user", u.ID)

	first, err := f.repo.FindByID(ctx, u.ID, dir)
	require.NoError(t, err)
	second, err := f.repo.FindByID(ctx, u.ID, dir)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), f.users.reads.Load())
}

func TestGeneric_FindByIDNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.FindByID(context.Background(), 7, cache.NewDirective(time.Minute, "user", 7))

	var repoErr *repository.Error
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, "users", repoErr.Table)
	assert.Equal(t, "find_by_id", repoErr.Op)
	assert.True(t, repository.IsNotFound(err))
}

func TestGeneric_UpdateWritesFullEntityThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "a@example.com")
	dir := cache.NewDirective(time.Minute, "user", u.ID)

	updated, err := f.repo.Update(ctx, u.ID, map[string]any{"name": "Renamed"}, dir)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "hash", updated.PasswordHash)

	readsBefore := f.users.reads.Load()
	cached, err := f.repo.FindByID(ctx, u.ID, dir)
	require.NoError(t, err)
	assert.Equal(t, updated, cached)
	assert.Equal(t, readsBefore, f.users.reads.Load())
}

func TestGeneric_UpdateWithoutDirectiveLeavesStaleEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "a@example.com")
	dir := cache.NewDirective(time.Minute, "user", u.ID)

	_, err := f.repo.FindByID(ctx, u.ID, dir)
	require.NoError(t, err)
	_, err = f.repo.Update(ctx, u.ID, map[string]any{"name": "Fresh"}, nil)
	require.NoError(t, err)

	stale, err := f.repo.FindByID(ctx, u.ID, dir)
	require.NoError(t, err)
	assert.Equal(t, "N", stale.Name)

	fresh, err := f.repo.FindByID(ctx, u.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Fresh", fresh.Name)
}

func TestGeneric_UpdateFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "a@example.com")
	f.createUser(t, "b@example.com")

	_, err := f.repo.Update(ctx, 999, map[string]any{"name": "x"}, nil)
	assert.ErrorIs(t, err, repository.ErrEntityNotFound)

	_, err = f.repo.Update(ctx, u.ID, map[string]any{}, nil)
	assert.ErrorIs(t, err, repository.ErrEntityPersistFailure)

	_, err = f.repo.Update(ctx, u.ID, map[string]any{"role": "admin"}, nil)
	assert.ErrorIs(t, err, repository.ErrEntityPersistFailure)

	_, err = f.repo.Update(ctx, u.ID, map[string]any{"email": "b@example.com"}, nil)
	assert.ErrorIs(t, err, repository.ErrEntityPersistFailure)

	got, err := f.repo.FindByID(ctx, u.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)
}

func TestGeneric_DeleteRemovesCacheKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "a@example.com")
	dir := cache.NewDirective(time.Minute, "user", u.ID)

	_, err := f.repo.FindByID(ctx, u.ID, dir)
	require.NoError(t, err)
	require.NoError(t, f.repo.Delete(ctx, u.ID, dir))

	_, err = f.client.Get(ctx, dir.Key)
	assert.ErrorIs(t, err, cache.ErrMiss)
	_, err = f.repo.FindByID(ctx, u.ID, dir)
	assert.ErrorIs(t, err, repository.ErrEntityNotFound)

	err = f.repo.Delete(ctx, u.ID, dir)
	assert.ErrorIs(t, err, repository.ErrEntityNotFound)
}

func TestGeneric_DeleteUserCascadesToTodos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, "owner@example.com")
	other := f.createUser(t, "other@example.com")

	var owned []int64
	for _, title := range []string{"one", "two"} {
		todo, err := f.todo.Create(ctx, &account.Todo{Title: title, UserID: owner.ID}, nil)
		require.NoError(t, err)
		owned = append(owned, todo.ID)
	}
	kept, err := f.todo.Create(ctx, &account.Todo{Title: "three", UserID: other.ID}, nil)
	require.NoError(t, err)

	require.NoError(t, f.repo.Delete(ctx, owner.ID, nil))

	for _, id := range owned {
		_, err := f.todo.FindByID(ctx, id, nil)
		assert.ErrorIs(t, err, repository.ErrEntityNotFound)
	}

	todos, err := f.todo.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Equal(t, kept.ID, todos[0].ID)
}

func TestGeneric_CreateTodoForMissingUserFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.todo.Create(ctx, &account.Todo{Title: "orphan", UserID: 404}, nil)
	assert.ErrorIs(t, err, repository.ErrEntityPersistFailure)

	// the failed transaction was rolled back and released the store
	owner := f.createUser(t, "owner@example.com")
	_, err = f.todo.Create(ctx, &account.Todo{Title: "ok", UserID: owner.ID}, nil)
	require.NoError(t, err)
}

func TestGeneric_ListCachesWholeList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "a@example.com")
	f.createUser(t, "b@example.com")
	dir := cache.NewDirective(time.Minute, "users", "all")

	first, err := f.repo.List(ctx, dir)
	require.NoError(t, err)
	require.Len(t, first, 2)

	f.createUser(t, "c@example.com")
	second, err := f.repo.List(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), f.users.reads.Load())

	uncached, err := f.repo.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, uncached, 3)
}

func TestGeneric_Paginate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, email := range []string{"a@x.io", "b@x.io", "c@x.io", "d@x.io", "e@x.io"} {
		f.createUser(t, email)
	}

	page, err := f.repo.Paginate(ctx, 2, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.TotalCount)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c@x.io", page.Items[0].Email)

	tail, err := f.repo.Paginate(ctx, 4, 10, nil)
	require.NoError(t, err)
	assert.Len(t, tail.Items, 1)

	empty, err := f.repo.Paginate(ctx, 50, 10, nil)
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
	assert.Equal(t, int64(5), empty.TotalCount)
}

func TestGeneric_PaginateRejectsInvalidWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := cache.NewDirective(time.Minute, "users", "page")

	_, err := f.repo.Paginate(ctx, -1, 10, dir)
	assert.ErrorIs(t, err, repository.ErrRepository)
	_, err = f.repo.Paginate(ctx, 0, 0, dir)
	assert.ErrorIs(t, err, repository.ErrRepository)
	assert.Zero(t, f.users.reads.Load())
}

func TestGeneric_PaginateSharedKeyReturnsFirstCachedWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, email := range []string{"a@x.io", "b@x.io", "c@x.io", "d@x.io"} {
		f.createUser(t, email)
	}
	shared := cache.NewDirective(time.Minute, "users", "page")

	first, err := f.repo.Paginate(ctx, 0, 2, shared)
	require.NoError(t, err)
	second, err := f.repo.Paginate(ctx, 2, 2, shared)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	distinct := cache.NewDirective(time.Minute, cache.PageKey("users", 2, 2))
	third, err := f.repo.Paginate(ctx, 2, 2, distinct)
	require.NoError(t, err)
	require.Len(t, third.Items, 2)
	assert.Equal(t, "c@x.io", third.Items[0].Email)
}

func TestGeneric_CacheFaultsDegradeToStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := repository.NewUserRepository(f.users, brokenCache{}, zerolog.Nop())
	dir := cache.NewDirective(time.Minute, "user", 1)

	created, err := repo.Create(ctx, &account.User{Email: "a@example.com"}, dir)
	require.NoError(t, err)

	got, err := repo.FindByID(ctx, created.ID, dir)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = repo.Update(ctx, created.ID, map[string]any{"name": "B"}, dir)
	require.NoError(t, err)

	page, err := repo.Paginate(ctx, 0, 10, dir)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	require.NoError(t, repo.Delete(ctx, created.ID, dir))
}

func TestGeneric_UndecodablePayloadFallsBackToStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "a@example.com")
	dir := cache.NewDirective(time.Minute, "user", u.ID)
	require.NoError(t, f.client.Set(ctx, dir.Key, []byte("not json"), time.Minute))

	got, err := f.repo.FindByID(ctx, u.ID, dir)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, int64(1), f.users.reads.Load())

	again, err := f.repo.FindByID(ctx, u.ID, dir)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, int64(1), f.users.reads.Load())
}

func TestGeneric_NilClientDisablesCaching(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := repository.NewGeneric[account.User](f.users, nil, repository.UserSchema, zerolog.Nop())
	dir := cache.NewDirective(time.Minute, "user", 1)

	created, err := repo.Create(ctx, &account.User{Email: "a@example.com"}, dir)
	require.NoError(t, err)
	_, err = repo.FindByID(ctx, created.ID, dir)
	require.NoError(t, err)
	_, err = repo.FindByID(ctx, created.ID, dir)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.users.reads.Load())
}
