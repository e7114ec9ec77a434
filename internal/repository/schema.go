package repository

import (
	"encoding/json"
	"fmt"
	"slices"

	"accounts/backend/internal/domain/account"
)

// Schema binds an entity type to its table and to its cached representation.
type Schema[T any] struct {
	Table string
	// Columns lists the writable columns in insert order. The "id" primary key is implicit.
	Columns []string
	ID      func(*T) int64
	SetID   func(*T, int64)
	// Values returns the entity's values in Columns order.
	Values func(*T) []any
	// Targets returns pointers to the id field followed by the Columns fields, for row scanning.
	Targets func(*T) []any
	Encode  func(*T) ([]byte, error)
	Decode  func([]byte) (*T, error)
}

// CheckFields verifies that every key in fields is a writable column.
func (s Schema[T]) CheckFields(fields map[string]any) error {
	for name := range fields {
		if !slices.Contains(s.Columns, name) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownField, s.Table, name)
		}
	}
	return nil
}

// userRecord and todoRecord mirror the entity structs field for field, so the
// struct conversions below stop compiling if an entity changes shape.
type userRecord struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash"`
	IsActive     bool   `json:"is_active"`
}

type todoRecord struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsCompleted bool   `json:"is_completed"`
	UserID      int64  `json:"user_id"`
}

// UserSchema maps account.User onto the users table.
var UserSchema = Schema[account.User]{
	Table:   "users",
	Columns: []string{"email", "name", "password_hash", "is_active"},
	ID:      func(u *account.User) int64 { return u.ID },
	SetID:   func(u *account.User, id int64) { u.ID = id },
	Values: func(u *account.User) []any {
		return []any{u.Email, u.Name, u.PasswordHash, u.IsActive}
	},
	Targets: func(u *account.User) []any {
		return []any{&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsActive}
	},
	Encode: func(u *account.User) ([]byte, error) {
		return json.Marshal(userRecord(*u))
	},
	Decode: func(data []byte) (*account.User, error) {
		var rec userRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		u := account.User(rec)
		return &u, nil
	},
}

// TodoSchema maps account.Todo onto the todos table.
var TodoSchema = Schema[account.Todo]{
	Table:   "todos",
	Columns: []string{"title", "description", "is_completed", "user_id"},
	ID:      func(t *account.Todo) int64 { return t.ID },
	SetID:   func(t *account.Todo, id int64) { t.ID = id },
	Values: func(t *account.Todo) []any {
		return []any{t.Title, t.Description, t.IsCompleted, t.UserID}
	},
	Targets: func(t *account.Todo) []any {
		return []any{&t.ID, &t.Title, &t.Description, &t.IsCompleted, &t.UserID}
	},
	Encode: func(t *account.Todo) ([]byte, error) {
		return json.Marshal(todoRecord(*t))
	},
	Decode: func(data []byte) (*account.Todo, error) {
		var rec todoRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		t := account.Todo(rec)
		return &t, nil
	},
}
