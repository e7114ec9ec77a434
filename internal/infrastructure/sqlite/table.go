package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"accounts/backend/internal/repository"
)

// Table persists entities of type T in the table named by its schema.
type Table[T any] struct {
	db     *sql.DB
	schema repository.Schema[T]
	name   string
	cols   string
}

var _ repository.Store[struct{}] = (*Table[struct{}])(nil)

// NewTable constructs a store for schema over the database.
func NewTable[T any](db *Database, schema repository.Schema[T]) *Table[T] {
	cols := make([]string, 0, len(schema.Columns)+1)
	cols = append(cols, ident("id"))
	for _, c := range schema.Columns {
		cols = append(cols, ident(c))
	}
	return &Table[T]{
		db:     db.DB,
		schema: schema,
		name:   ident(schema.Table),
		cols:   strings.Join(cols, ", "),
	}
}

// Begin starts a transaction. It waits for the single connection to be free.
func (t *Table[T]) Begin(ctx context.Context) (repository.Tx[T], error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx[T]{tx: tx, table: t}, nil
}

func (t *Table[T]) GetByID(ctx context.Context, id int64) (*T, error) {
	return t.one(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, t.cols, t.name), id)
}

func (t *Table[T]) SelectAll(ctx context.Context) ([]*T, error) {
	return t.many(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, t.cols, t.name))
}

func (t *Table[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := t.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, t.name)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *Table[T]) SelectWindow(ctx context.Context, skip, take int) ([]*T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id LIMIT ? OFFSET ?`, t.cols, t.name)
	return t.many(ctx, query, take, skip)
}

func (t *Table[T]) SelectByField(ctx context.Context, field string, value any) (*T, error) {
	if err := t.checkField(field); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? ORDER BY id LIMIT 1`, t.cols, t.name, ident(field))
	return t.one(ctx, query, value)
}

func (t *Table[T]) CountByField(ctx context.Context, field string, value any) (int64, error) {
	if err := t.checkField(field); err != nil {
		return 0, err
	}
	var n int64
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s = ?`, t.name, ident(field))
	if err := t.db.QueryRowContext(ctx, query, value).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *Table[T]) SelectWindowByField(ctx context.Context, field string, value any, skip, take int) ([]*T, error) {
	if err := t.checkField(field); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? ORDER BY id LIMIT ? OFFSET ?`, t.cols, t.name, ident(field))
	return t.many(ctx, query, value, take, skip)
}

func (t *Table[T]) checkField(field string) error {
	if field != "id" && !slices.Contains(t.schema.Columns, field) {
		return fmt.Errorf("%w: %s.%s", repository.ErrUnknownField, t.schema.Table, field)
	}
	return nil
}

func (t *Table[T]) one(ctx context.Context, query string, args ...any) (*T, error) {
	items, err := t.many(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, repository.ErrNoRows
	}
	return items[0], nil
}

func (t *Table[T]) many(ctx context.Context, query string, args ...any) ([]*T, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*T{}
	for rows.Next() {
		entity := new(T)
		if err := rows.Scan(t.schema.Targets(entity)...); err != nil {
			return nil, err
		}
		items = append(items, entity)
	}
	return items, rows.Err()
}

type sqlTx[T any] struct {
	tx    *sql.Tx
	table *Table[T]
}

func (x *sqlTx[T]) Insert(ctx context.Context, entity *T) (int64, error) {
	s := x.table.schema
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = ident(c)
	}
	params := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, x.table.name, strings.Join(cols, ", "), params)

	res, err := x.tx.ExecContext(ctx, query, s.Values(entity)...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateWhere sets the given columns on the row with id, in column name order.
func (x *sqlTx[T]) UpdateWhere(ctx context.Context, id int64, fields map[string]any) (int64, error) {
	if err := x.table.schema.CheckFields(fields); err != nil {
		return 0, err
	}
	names := slices.Sorted(maps.Keys(fields))
	sets := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	for i, name := range names {
		sets[i] = ident(name) + " = ?"
		args = append(args, fields[name])
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, x.table.name, strings.Join(sets, ", "))

	res, err := x.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (x *sqlTx[T]) DeleteWhere(ctx context.Context, id int64) (int64, error) {
	res, err := x.tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, x.table.name), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (x *sqlTx[T]) Commit(context.Context) error { return x.tx.Commit() }

func (x *sqlTx[T]) Rollback(context.Context) error {
	if err := x.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
