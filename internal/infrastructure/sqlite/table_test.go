package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"accounts/backend/internal/domain/account"
	"accounts/backend/internal/infrastructure/sqlite"
	"accounts/backend/internal/repository"
	"accounts/backend/internal/testsupport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccountsDB(t *testing.T) (*sqlite.Table[account.User], *sqlite.Table[account.Todo]) {
	t.Helper()
	db := testsupport.OpenSQLite(t)
	return sqlite.NewTable(db, repository.UserSchema), sqlite.NewTable(db, repository.TodoSchema)
}

func insert[T any](t *testing.T, tbl *sqlite.Table[T], entity *T) int64 {
	t.Helper()
	ctx := context.Background()
	tx, err := tbl.Begin(ctx)
	require.NoError(t, err)
	id, err := tx.Insert(ctx, entity)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	return id
}

func TestOpen(t *testing.T) {
	_, err := sqlite.Open(context.Background(), sqlite.Config{})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "accounts.db")
	db, err := sqlite.Open(context.Background(), sqlite.Config{DSN: path})
	require.NoError(t, err)
	defer db.Close()

	var enabled int
	require.NoError(t, db.DB.QueryRow(`PRAGMA foreign_keys`).Scan(&enabled))
	assert.Equal(t, 1, enabled)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testsupport.OpenSQLite(t)
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	require.NoError(t, db.Rollback(ctx, 1))
	var name string
	err := db.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'identities'`).Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'identities'`).Scan(&name))
	assert.Equal(t, "identities", name)
}

func TestTable_InsertAssignsIncreasingIDs(t *testing.T) {
	users, _ := newAccountsDB(t)
	first := insert(t, users, &account.User{Email: "a@example.com", Name: "A"})
	second := insert(t, users, &account.User{Email: "b@example.com", Name: "B"})
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)

	got, err := users.GetByID(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", got.Email)
	assert.Equal(t, second, got.ID)
}

func TestTable_GetByIDMissing(t *testing.T) {
	users, _ := newAccountsDB(t)
	_, err := users.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, repository.ErrNoRows)
}

func TestTable_UniqueViolation(t *testing.T) {
	users, _ := newAccountsDB(t)
	ctx := context.Background()
	insert(t, users, &account.User{Email: "dup@example.com"})

	tx, err := users.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, &account.User{Email: "dup@example.com"})
	assert.Error(t, err)
	require.NoError(t, tx.Rollback(ctx))

	count, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestTable_ForeignKeyViolation(t *testing.T) {
	_, todos := newAccountsDB(t)
	ctx := context.Background()
	tx, err := todos.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, &account.Todo{Title: "orphan", UserID: 99})
	assert.Error(t, err)
	require.NoError(t, tx.Rollback(ctx))
}

func TestTable_DeleteCascadesToTodos(t *testing.T) {
	users, todos := newAccountsDB(t)
	ctx := context.Background()
	owner := insert(t, users, &account.User{Email: "owner@example.com"})
	other := insert(t, users, &account.User{Email: "other@example.com"})
	insert(t, todos, &account.Todo{Title: "one", UserID: owner})
	insert(t, todos, &account.Todo{Title: "two", UserID: owner})
	kept := insert(t, todos, &account.Todo{Title: "three", UserID: other})

	tx, err := users.Begin(ctx)
	require.NoError(t, err)
	n, err := tx.DeleteWhere(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, tx.Commit(ctx))

	remaining, err := todos.SelectAll(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, kept, remaining[0].ID)
}

func TestTable_RollbackRestoresState(t *testing.T) {
	users, todos := newAccountsDB(t)
	ctx := context.Background()
	owner := insert(t, users, &account.User{Email: "owner@example.com", Name: "Before"})
	insert(t, todos, &account.Todo{Title: "task", UserID: owner})

	tx, err := users.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.UpdateWhere(ctx, owner, map[string]any{"name": "After"})
	require.NoError(t, err)
	_, err = tx.DeleteWhere(ctx, owner)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, &account.User{Email: "new@example.com"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	got, err := users.GetByID(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "Before", got.Name)
	count, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	todoCount, err := todos.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), todoCount)
}

func TestTable_TxDone(t *testing.T) {
	users, _ := newAccountsDB(t)
	ctx := context.Background()
	tx, err := users.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.NoError(t, tx.Rollback(ctx))
	_, err = tx.Insert(ctx, &account.User{Email: "late@example.com"})
	assert.ErrorIs(t, err, sql.ErrTxDone)
}

func TestTable_UpdateWhere(t *testing.T) {
	users, _ := newAccountsDB(t)
	ctx := context.Background()
	id := insert(t, users, &account.User{Email: "u@example.com", Name: "Old"})
	insert(t, users, &account.User{Email: "taken@example.com"})

	tx, err := users.Begin(ctx)
	require.NoError(t, err)
	n, err := tx.UpdateWhere(ctx, id+100, map[string]any{"name": "Nobody"})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = tx.UpdateWhere(ctx, id, map[string]any{"nickname": "x"})
	assert.ErrorIs(t, err, repository.ErrUnknownField)

	_, err = tx.UpdateWhere(ctx, id, map[string]any{"email": "taken@example.com"})
	assert.Error(t, err)

	n, err = tx.UpdateWhere(ctx, id, map[string]any{"name": "New", "is_active": true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, tx.Commit(ctx))

	got, err := users.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Name)
	assert.True(t, got.IsActive)
	assert.Equal(t, "u@example.com", got.Email)
}

func TestTable_SelectWindowAndByField(t *testing.T) {
	users, _ := newAccountsDB(t)
	ctx := context.Background()
	for _, email := range []string{"a@x.io", "b@x.io", "c@x.io", "d@x.io"} {
		insert(t, users, &account.User{Email: email})
	}

	window, err := users.SelectWindow(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "b@x.io", window[0].Email)
	assert.Equal(t, "c@x.io", window[1].Email)

	past, err := users.SelectWindow(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, past)

	found, err := users.SelectByField(ctx, "email", "c@x.io")
	require.NoError(t, err)
	assert.Equal(t, int64(3), found.ID)

	_, err = users.SelectByField(ctx, "email", "zzz@x.io")
	assert.ErrorIs(t, err, repository.ErrNoRows)

	_, err = users.SelectByField(ctx, "phone", "1")
	assert.ErrorIs(t, err, repository.ErrUnknownField)
}

func TestTable_WindowByField(t *testing.T) {
	users, todos := newAccountsDB(t)
	ctx := context.Background()
	owner := insert(t, users, &account.User{Email: "owner@example.com"})
	other := insert(t, users, &account.User{Email: "other@example.com"})
	for _, title := range []string{"a", "b", "c"} {
		insert(t, todos, &account.Todo{Title: title, UserID: owner})
	}
	insert(t, todos, &account.Todo{Title: "x", UserID: other})

	n, err := todos.CountByField(ctx, "user_id", owner)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	window, err := todos.SelectWindowByField(ctx, "user_id", owner, 1, 5)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "b", window[0].Title)
	assert.Equal(t, "c", window[1].Title)

	_, err = todos.CountByField(ctx, "owner", owner)
	assert.ErrorIs(t, err, repository.ErrUnknownField)
}

func TestTable_BeginHonoursContext(t *testing.T) {
	users, _ := newAccountsDB(t)
	tx, err := users.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = users.Begin(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
