// Package repository implements store access for entity kinds described by a Schema,
// with optional per-call cache-aside behaviour.
//
// Every operation takes a *cache.Directive. A nil directive bypasses the cache: the
// call neither reads nor writes it. With a directive, reads consult the cache first
// and populate it on a miss, creates and updates write the fresh entity through, and
// deletes remove the key. Writes made without a directive never touch the cache, so
// entries they would affect stay until their TTL runs out.
//
// Store faults are logged, rolled back where a transaction is open, and returned as
// *Error values classified by ErrEntityNotFound, ErrEntityPersistFailure or
// ErrRepository. Cache faults never fail an operation: a failed or undecodable read
// is treated as a miss and a failed write is logged.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"accounts/backend/internal/cache"

	"github.com/rs/zerolog"
)

// Page is one window of a paginated listing plus the table's total row count.
type Page[T any] struct {
	Items      []*T  `json:"items"`
	TotalCount int64 `json:"total_count"`
}

type pagePayload struct {
	Items      []json.RawMessage `json:"items"`
	TotalCount int64             `json:"total_count"`
}

// Generic is the cache-aside repository for one entity kind.
type Generic[T any] struct {
	store  Store[T]
	cache  cache.Client
	schema Schema[T]
	logger zerolog.Logger
}

// NewGeneric constructs a repository. A nil client disables caching for every call.
func NewGeneric[T any](store Store[T], client cache.Client, schema Schema[T], logger zerolog.Logger) *Generic[T] {
	if client == nil {
		client = cache.Nop{}
	}
	return &Generic[T]{
		store:  store,
		cache:  client,
		schema: schema,
		logger: logger.With().Str("component", "GenericRepository").Str("table", schema.Table).Logger(),
	}
}

// Create inserts the entity in its own transaction and returns a copy carrying the generated id.
func (r *Generic[T]) Create(ctx context.Context, entity *T, dir *cache.Directive) (*T, error) {
	const op = "create"
	if entity == nil {
		return nil, r.fail(op, ErrEntityPersistFailure, errors.New("nil entity"))
	}

	tx, err := r.store.Begin(ctx)
	if err != nil {
		return nil, r.fail(op, ErrEntityPersistFailure, err)
	}
	id, err := tx.Insert(ctx, entity)
	if err != nil {
		r.rollback(ctx, op, tx)
		return nil, r.fail(op, ErrEntityPersistFailure, err)
	}
	if err := tx.Commit(ctx); err != nil {
		r.rollback(ctx, op, tx)
		return nil, r.fail(op, ErrEntityPersistFailure, err)
	}

	created := *entity
	r.schema.SetID(&created, id)
	writeThrough(ctx, r.cache, r.logger, op, dir, func() ([]byte, error) {
		return r.schema.Encode(&created)
	})
	return &created, nil
}

// FindByID returns the entity with the given id. A cache hit is returned without
// reading the store, so it may be up to the directive's TTL old.
func (r *Generic[T]) FindByID(ctx context.Context, id int64, dir *cache.Directive) (*T, error) {
	const op = "find_by_id"
	if hit, ok := readThrough(ctx, r.cache, r.logger, op, dir, r.schema.Decode); ok {
		return hit, nil
	}

	entity, err := r.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, r.fail(op, ErrEntityNotFound, fmt.Errorf("id %d", id))
		}
		return nil, r.fail(op, ErrRepository, err)
	}

	writeThrough(ctx, r.cache, r.logger, op, dir, func() ([]byte, error) {
		return r.schema.Encode(entity)
	})
	return entity, nil
}

// Update applies a partial column update to the row with the given id and returns
// the row as re-read from the store after commit. With a directive, the cache entry
// is replaced by the full post-update entity.
func (r *Generic[T]) Update(ctx context.Context, id int64, fields map[string]any, dir *cache.Directive) (*T, error) {
	const op = "update"
	if len(fields) == 0 {
		return nil, r.fail(op, ErrEntityPersistFailure, errors.New("no fields to update"))
	}
	if err := r.schema.CheckFields(fields); err != nil {
		return nil, r.fail(op, ErrEntityPersistFailure, err)
	}

	tx, err := r.store.Begin(ctx)
	if err != nil {
		return nil, r.fail(op, ErrEntityPersistFailure, err)
	}
	affected, err := tx.UpdateWhere(ctx, id, fields)
	if err != nil {
		r.rollback(ctx, op, tx)
		return nil, r.fail(op, ErrEntityPersistFailure, err)
	}
	if affected == 0 {
		r.rollback(ctx, op, tx)
		return nil, r.fail(op, ErrEntityNotFound, fmt.Errorf("id %d", id))
	}
	if err := tx.Commit(ctx); err != nil {
		r.rollback(ctx, op, tx)
		return nil, r.fail(op, ErrEntityPersistFailure, err)
	}

	updated, err := r.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, r.fail(op, ErrEntityNotFound, fmt.Errorf("id %d vanished after update", id))
		}
		return nil, r.fail(op, ErrRepository, fmt.Errorf("re-read after update: %w", err))
	}

	writeThrough(ctx, r.cache, r.logger, op, dir, func() ([]byte, error) {
		return r.schema.Encode(updated)
	})
	return updated, nil
}

// Delete removes the row with the given id (and, at the store level, rows it owns).
// With a directive, the cache key is removed after commit.
func (r *Generic[T]) Delete(ctx context.Context, id int64, dir *cache.Directive) error {
	const op = "delete"
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return r.fail(op, ErrEntityPersistFailure, err)
	}
	affected, err := tx.DeleteWhere(ctx, id)
	if err != nil {
		r.rollback(ctx, op, tx)
		return r.fail(op, ErrEntityPersistFailure, err)
	}
	if affected == 0 {
		r.rollback(ctx, op, tx)
		return r.fail(op, ErrEntityNotFound, fmt.Errorf("id %d", id))
	}
	if err := tx.Commit(ctx); err != nil {
		r.rollback(ctx, op, tx)
		return r.fail(op, ErrEntityPersistFailure, err)
	}

	if dir != nil {
		if err := r.cache.Delete(ctx, dir.Key); err != nil {
			r.logger.Error().Err(err).Str("op", op).Str("key", dir.Key).Msg("cache invalidation failed")
		}
	}
	return nil
}

// List returns every row in store order, or the cached list under the directive's key.
func (r *Generic[T]) List(ctx context.Context, dir *cache.Directive) ([]*T, error) {
	const op = "list"
	if hit, ok := readThrough(ctx, r.cache, r.logger, op, dir, r.decodeList); ok {
		return hit, nil
	}

	items, err := r.store.SelectAll(ctx)
	if err != nil {
		return nil, r.fail(op, ErrRepository, err)
	}

	writeThrough(ctx, r.cache, r.logger, op, dir, func() ([]byte, error) {
		return r.encodeList(items)
	})
	return items, nil
}

// Paginate returns rows [skip, skip+take) with the total row count.
//
// A cache hit returns whatever page was stored under the directive's key,
// regardless of skip and take. Callers that page through results must derive
// a distinct key per window, for example with cache.PageKey.
func (r *Generic[T]) Paginate(ctx context.Context, skip, take int, dir *cache.Directive) (*Page[T], error) {
	const op = "paginate"
	if skip < 0 || take <= 0 {
		return nil, r.fail(op, ErrRepository, fmt.Errorf("invalid window skip=%d take=%d", skip, take))
	}
	if hit, ok := readThrough(ctx, r.cache, r.logger, op, dir, r.decodePage); ok {
		return hit, nil
	}

	total, err := r.store.Count(ctx)
	if err != nil {
		return nil, r.fail(op, ErrRepository, err)
	}
	items, err := r.store.SelectWindow(ctx, skip, take)
	if err != nil {
		return nil, r.fail(op, ErrRepository, err)
	}
	if items == nil {
		items = []*T{}
	}
	page := &Page[T]{Items: items, TotalCount: total}

	writeThrough(ctx, r.cache, r.logger, op, dir, func() ([]byte, error) {
		return r.encodePage(page)
	})
	return page, nil
}

// PaginateBy is Paginate restricted to rows whose field equals value. TotalCount
// counts the matching rows only. The directive key is used verbatim, as in Paginate.
func (r *Generic[T]) PaginateBy(ctx context.Context, field string, value any, skip, take int, dir *cache.Directive) (*Page[T], error) {
	const op = "paginate_by"
	if skip < 0 || take <= 0 {
		return nil, r.fail(op, ErrRepository, fmt.Errorf("invalid window skip=%d take=%d", skip, take))
	}
	if hit, ok := readThrough(ctx, r.cache, r.logger, op, dir, r.decodePage); ok {
		return hit, nil
	}

	total, err := r.store.CountByField(ctx, field, value)
	if err != nil {
		return nil, r.fail(op, ErrRepository, err)
	}
	items, err := r.store.SelectWindowByField(ctx, field, value, skip, take)
	if err != nil {
		return nil, r.fail(op, ErrRepository, err)
	}
	if items == nil {
		items = []*T{}
	}
	page := &Page[T]{Items: items, TotalCount: total}

	writeThrough(ctx, r.cache, r.logger, op, dir, func() ([]byte, error) {
		return r.encodePage(page)
	})
	return page, nil
}

// findByField reads the lowest-id row whose field equals value, bypassing the cache.
func (r *Generic[T]) findByField(ctx context.Context, op, field string, value any) (*T, error) {
	entity, err := r.store.SelectByField(ctx, field, value)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, r.fail(op, ErrEntityNotFound, fmt.Errorf("%s %v", field, value))
		}
		return nil, r.fail(op, ErrRepository, err)
	}
	return entity, nil
}

func (r *Generic[T]) encodeList(items []*T) ([]byte, error) {
	raw, err := r.encodeItems(items)
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

func (r *Generic[T]) decodeList(data []byte) ([]*T, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return r.decodeItems(raw)
}

func (r *Generic[T]) encodePage(page *Page[T]) ([]byte, error) {
	raw, err := r.encodeItems(page.Items)
	if err != nil {
		return nil, err
	}
	return json.Marshal(pagePayload{Items: raw, TotalCount: page.TotalCount})
}

func (r *Generic[T]) decodePage(data []byte) (*Page[T], error) {
	var payload pagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	items, err := r.decodeItems(payload.Items)
	if err != nil {
		return nil, err
	}
	return &Page[T]{Items: items, TotalCount: payload.TotalCount}, nil
}

func (r *Generic[T]) encodeItems(items []*T) ([]json.RawMessage, error) {
	raw := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		data, err := r.schema.Encode(item)
		if err != nil {
			return nil, err
		}
		raw = append(raw, data)
	}
	return raw, nil
}

func (r *Generic[T]) decodeItems(raw []json.RawMessage) ([]*T, error) {
	items := make([]*T, 0, len(raw))
	for _, data := range raw {
		item, err := r.schema.Decode(data)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *Generic[T]) fail(op string, kind, err error) error {
	event := r.logger.Error()
	if errors.Is(kind, ErrEntityNotFound) {
		event = r.logger.Info()
	}
	event.Err(err).Str("op", op).Msg(kind.Error())
	return &Error{Op: op, Table: r.schema.Table, Kind: kind, Err: err}
}

// rollback runs even when ctx is already cancelled so the transaction is never left open.
func (r *Generic[T]) rollback(ctx context.Context, op string, tx Tx[T]) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		r.logger.Warn().Err(err).Str("op", op).Msg("rollback failed")
	}
}

func readThrough[V any](
	ctx context.Context,
	client cache.Client,
	logger zerolog.Logger,
	op string,
	dir *cache.Directive,
	decode func([]byte) (V, error),
) (V, bool) {
	var zero V
	if dir == nil {
		return zero, false
	}
	data, err := client.Get(ctx, dir.Key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			logger.Error().Err(err).Str("op", op).Str("key", dir.Key).Msg("cache read failed, using store")
		}
		return zero, false
	}
	value, err := decode(data)
	if err != nil {
		logger.Error().Err(err).Str("op", op).Str("key", dir.Key).Msg("cached payload undecodable, using store")
		return zero, false
	}
	logger.Debug().Str("op", op).Str("key", dir.Key).Msg("cache hit")
	return value, true
}

func writeThrough(
	ctx context.Context,
	client cache.Client,
	logger zerolog.Logger,
	op string,
	dir *cache.Directive,
	encode func() ([]byte, error),
) {
	if dir == nil {
		return
	}
	data, err := encode()
	if err != nil {
		logger.Error().Err(err).Str("op", op).Str("key", dir.Key).Msg("cache encode failed")
		return
	}
	if err := client.Set(ctx, dir.Key, data, dir.TTL); err != nil {
		logger.Error().Err(err).Str("op", op).Str("key", dir.Key).Msg("cache write failed")
	}
}
