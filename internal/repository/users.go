package repository

import (
	"context"
	"encoding/json"

	"accounts/backend/internal/cache"
	"accounts/backend/internal/domain/account"

	"github.com/rs/zerolog"
)

// UserRepository adds lookup by email to the generic user repository.
type UserRepository struct {
	*Generic[account.User]
}

// NewUserRepository constructs a user repository over the given store.
func NewUserRepository(store Store[account.User], client cache.Client, logger zerolog.Logger) *UserRepository {
	return &UserRepository{Generic: NewGeneric(store, client, UserSchema, logger)}
}

// userProjection is the cached form used by FindByEmail. It leaves out the password hash.
type userProjection struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

func encodeUserProjection(u *account.User) ([]byte, error) {
	return json.Marshal(userProjection{ID: u.ID, Email: u.Email, Name: u.Name, IsActive: u.IsActive})
}

func decodeUserProjection(data []byte) (*account.User, error) {
	var p userProjection
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &account.User{ID: p.ID, Email: p.Email, Name: p.Name, IsActive: p.IsActive}, nil
}

// FindByEmail looks a user up by its unique email. On a cache hit the returned user
// carries only the projected fields and an empty PasswordHash.
func (r *UserRepository) FindByEmail(ctx context.Context, email string, dir *cache.Directive) (*account.User, error) {
	const op = "find_by_email"
	if hit, ok := readThrough(ctx, r.cache, r.logger, op, dir, decodeUserProjection); ok {
		return hit, nil
	}

	user, err := r.findByField(ctx, op, "email", email)
	if err != nil {
		return nil, err
	}

	writeThrough(ctx, r.cache, r.logger, op, dir, func() ([]byte, error) {
		return encodeUserProjection(user)
	})
	return user, nil
}
