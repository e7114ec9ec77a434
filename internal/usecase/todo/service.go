package todo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"accounts/backend/internal/cache"
	"accounts/backend/internal/domain/account"
	"accounts/backend/internal/repository"

	"github.com/rs/zerolog"
)

// ErrInvalidInput is returned when a request fails validation.
var ErrInvalidInput = errors.New("invalid input")

// Repository is the todo persistence used by the service.
type Repository interface {
	Create(ctx context.Context, t *account.Todo, dir *cache.Directive) (*account.Todo, error)
	FindByID(ctx context.Context, id int64, dir *cache.Directive) (*account.Todo, error)
	Update(ctx context.Context, id int64, fields map[string]any, dir *cache.Directive) (*account.Todo, error)
	Delete(ctx context.Context, id int64, dir *cache.Directive) error
	PaginateBy(ctx context.Context, field string, value any, skip, take int, dir *cache.Directive) (*repository.Page[account.Todo], error)
}

// UserLookup confirms a todo's owner exists.
type UserLookup interface {
	FindByID(ctx context.Context, id int64, dir *cache.Directive) (*account.User, error)
}

// Service manages todos owned by users. Every operation is scoped to the owner:
// a todo that belongs to someone else is reported as not found.
type Service struct {
	todos    Repository
	users    UserLookup
	keys     cache.Client
	pages    *cache.Generations
	cacheTTL time.Duration
	pageTTL  time.Duration
	logger   zerolog.Logger
}

// NewService constructs a todo service. keys is used to drop cached entries the
// repository cannot see go stale; it may be nil.
func NewService(todos Repository, users UserLookup, keys cache.Client, cacheTTL, pageTTL time.Duration, logger zerolog.Logger) *Service {
	if keys == nil {
		keys = cache.Nop{}
	}
	return &Service{
		todos:    todos,
		users:    users,
		keys:     keys,
		pages:    cache.NewGenerations(keys),
		cacheTTL: cacheTTL,
		pageTTL:  pageTTL,
		logger:   logger.With().Str("component", "TodoService").Logger(),
	}
}

// CreateInput is the payload for a new todo.
type CreateInput struct {
	UserID      int64
	Title       string
	Description string
}

// UpdateInput carries a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Title       *string
	Description *string
	IsCompleted *bool
}

// Create adds a todo for an existing user.
func (s *Service) Create(ctx context.Context, in CreateInput) (*account.Todo, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if _, err := s.users.FindByID(ctx, in.UserID, nil); err != nil {
		if repository.IsNotFound(err) {
			return nil, account.ErrUserNotFound
		}
		return nil, err
	}

	created, err := s.todos.Create(ctx, &account.Todo{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		UserID:      in.UserID,
	}, nil)
	if err != nil {
		return nil, err
	}
	s.dropPages(ctx, in.UserID)
	s.logger.Info().Int64("todo_id", created.ID).Int64("user_id", created.UserID).Msg("todo created")
	return created, nil
}

// Get returns one of the owner's todos. A cached todo whose owner has since been
// deleted is dropped and reported as not found.
func (s *Service) Get(ctx context.Context, ownerID, id int64) (*account.Todo, error) {
	dir := s.directive(id)
	t, err := s.todos.FindByID(ctx, id, dir)
	if err != nil {
		return nil, notFound(err)
	}
	if t.UserID != ownerID {
		return nil, account.ErrTodoNotFound
	}
	if _, err := s.users.FindByID(ctx, t.UserID, nil); err != nil {
		if !repository.IsNotFound(err) {
			return nil, err
		}
		if err := s.keys.Delete(ctx, dir.Key); err != nil {
			s.logger.Error().Err(err).Str("key", dir.Key).Msg("cache invalidation failed")
		}
		return nil, account.ErrTodoNotFound
	}
	return t, nil
}

// Update applies a partial update to one of the owner's todos and refreshes the cached copy.
func (s *Service) Update(ctx context.Context, ownerID, id int64, in UpdateInput) (*account.Todo, error) {
	fields := make(map[string]any)
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
		}
		fields["title"] = title
	}
	if in.Description != nil {
		fields["description"] = strings.TrimSpace(*in.Description)
	}
	if in.IsCompleted != nil {
		fields["is_completed"] = *in.IsCompleted
	}

	current, err := s.Get(ctx, ownerID, id)
	if err != nil || len(fields) == 0 {
		return current, err
	}

	t, err := s.todos.Update(ctx, id, fields, s.directive(id))
	if err != nil {
		return nil, notFound(err)
	}
	s.dropPages(ctx, ownerID)
	return t, nil
}

// Delete removes one of the owner's todos.
func (s *Service) Delete(ctx context.Context, ownerID, id int64) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.todos.Delete(ctx, id, s.directive(id)); err != nil {
		return notFound(err)
	}
	s.dropPages(ctx, ownerID)
	return nil
}

// List returns one page of the owner's todos. Each window is cached under its own
// key for the page TTL; any write to the owner's todos starts a new page generation.
func (s *Service) List(ctx context.Context, ownerID int64, skip, take int) (*repository.Page[account.Todo], error) {
	if skip < 0 || take <= 0 {
		return nil, fmt.Errorf("%w: skip must be >= 0 and take > 0", ErrInvalidInput)
	}
	dir := &cache.Directive{Key: s.pages.PageKey(ctx, pageNamespace(ownerID), skip, take), TTL: s.pageTTL}
	return s.todos.PaginateBy(ctx, "user_id", ownerID, skip, take, dir)
}

func (s *Service) directive(id int64) *cache.Directive {
	return cache.NewDirective(s.cacheTTL, "todo", id)
}

func (s *Service) dropPages(ctx context.Context, ownerID int64) {
	ns := pageNamespace(ownerID)
	if err := s.pages.Bump(ctx, ns); err != nil {
		s.logger.Error().Err(err).Str("namespace", ns).Msg("cache invalidation failed")
	}
}

func pageNamespace(ownerID int64) string {
	return cache.Key("todos", "user", ownerID)
}

func notFound(err error) error {
	if repository.IsNotFound(err) {
		return account.ErrTodoNotFound
	}
	return err
}
