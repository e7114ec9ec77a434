package postgres

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"accounts/backend/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Table persists entities of type T in the table named by its schema. T's fields
// carry db tags matching the column names.
type Table[T any] struct {
	pool   *pgxpool.Pool
	schema repository.Schema[T]
	name   string
	cols   string
}

var _ repository.Store[struct{}] = (*Table[struct{}])(nil)

// NewTable constructs a store for schema over the database pool.
func NewTable[T any](db *Database, schema repository.Schema[T]) *Table[T] {
	cols := make([]string, 0, len(schema.Columns)+1)
	cols = append(cols, ident("id"))
	for _, c := range schema.Columns {
		cols = append(cols, ident(c))
	}
	return &Table[T]{
		pool:   db.Pool,
		schema: schema,
		name:   ident(schema.Table),
		cols:   strings.Join(cols, ", "),
	}
}

// Begin starts a transaction on a pooled connection.
func (t *Table[T]) Begin(ctx context.Context) (repository.Tx[T], error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx[T]{tx: tx, table: t}, nil
}

func (t *Table[T]) GetByID(ctx context.Context, id int64) (*T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, t.cols, t.name)
	return t.one(ctx, query, id)
}

func (t *Table[T]) SelectAll(ctx context.Context) ([]*T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, t.cols, t.name)
	return t.many(ctx, query)
}

func (t *Table[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	query := fmt.Sprintf(`SELECT count(*) FROM %s`, t.name)
	if err := t.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *Table[T]) SelectWindow(ctx context.Context, skip, take int) ([]*T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id LIMIT $1 OFFSET $2`, t.cols, t.name)
	return t.many(ctx, query, take, skip)
}

func (t *Table[T]) SelectByField(ctx context.Context, field string, value any) (*T, error) {
	if field != "id" && !slices.Contains(t.schema.Columns, field) {
		return nil, fmt.Errorf("%w: %s.%s", repository.ErrUnknownField, t.schema.Table, field)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY id LIMIT 1`, t.cols, t.name, ident(field))
	return t.one(ctx, query, value)
}

func (t *Table[T]) CountByField(ctx context.Context, field string, value any) (int64, error) {
	if field != "id" && !slices.Contains(t.schema.Columns, field) {
		return 0, fmt.Errorf("%w: %s.%s", repository.ErrUnknownField, t.schema.Table, field)
	}
	var n int64
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s = $1`, t.name, ident(field))
	if err := t.pool.QueryRow(ctx, query, value).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *Table[T]) SelectWindowByField(ctx context.Context, field string, value any, skip, take int) ([]*T, error) {
	if field != "id" && !slices.Contains(t.schema.Columns, field) {
		return nil, fmt.Errorf("%w: %s.%s", repository.ErrUnknownField, t.schema.Table, field)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY id LIMIT $2 OFFSET $3`, t.cols, t.name, ident(field))
	return t.many(ctx, query, value, take, skip)
}

func (t *Table[T]) one(ctx context.Context, query string, args ...any) (*T, error) {
	rows, err := t.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	entity, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[T])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNoRows
		}
		return nil, err
	}
	return entity, nil
}

func (t *Table[T]) many(ctx context.Context, query string, args ...any) ([]*T, error) {
	rows, err := t.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[T])
}

type pgTx[T any] struct {
	tx    pgx.Tx
	table *Table[T]
}

func (x *pgTx[T]) Insert(ctx context.Context, entity *T) (int64, error) {
	s := x.table.schema
	cols := make([]string, len(s.Columns))
	params := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = ident(c)
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING id`,
		x.table.name, strings.Join(cols, ", "), strings.Join(params, ", "))

	var id int64
	if err := x.tx.QueryRow(ctx, query, s.Values(entity)...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateWhere sets the given columns on the row with id. Columns are written in
// name order so identical field sets produce identical statements.
func (x *pgTx[T]) UpdateWhere(ctx context.Context, id int64, fields map[string]any) (int64, error) {
	if err := x.table.schema.CheckFields(fields); err != nil {
		return 0, err
	}
	names := slices.Sorted(maps.Keys(fields))
	sets := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	for i, name := range names {
		sets[i] = fmt.Sprintf("%s = $%d", ident(name), i+1)
		args = append(args, fields[name])
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, x.table.name, strings.Join(sets, ", "), len(args))

	ct, err := x.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (x *pgTx[T]) DeleteWhere(ctx context.Context, id int64) (int64, error) {
	ct, err := x.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, x.table.name), id)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (x *pgTx[T]) Commit(ctx context.Context) error   { return x.tx.Commit(ctx) }
func (x *pgTx[T]) Rollback(ctx context.Context) error { return x.tx.Rollback(ctx) }

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
