package repository

import "context"

// Store is relational persistence for a single table of entities of type T.
// Single-row reads report a missing row as ErrNoRows.
type Store[T any] interface {
	Begin(ctx context.Context) (Tx[T], error)
	GetByID(ctx context.Context, id int64) (*T, error)
	SelectAll(ctx context.Context) ([]*T, error)
	Count(ctx context.Context) (int64, error)
	SelectWindow(ctx context.Context, skip, take int) ([]*T, error)
	SelectByField(ctx context.Context, field string, value any) (*T, error)
	CountByField(ctx context.Context, field string, value any) (int64, error)
	SelectWindowByField(ctx context.Context, field string, value any, skip, take int) ([]*T, error)
}

// Tx is a store transaction scoped to one repository operation.
type Tx[T any] interface {
	// Insert writes the entity's columns and returns the generated id.
	Insert(ctx context.Context, entity *T) (int64, error)
	UpdateWhere(ctx context.Context, id int64, fields map[string]any) (int64, error)
	DeleteWhere(ctx context.Context, id int64) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
