package account

import "errors"

var (
	// ErrEmailExists signals a duplicate email registration.
	ErrEmailExists = errors.New("email already registered")
	// ErrUserNotFound indicates missing user.
	ErrUserNotFound = errors.New("user not found")
	// ErrTodoNotFound indicates a todo could not be located.
	ErrTodoNotFound = errors.New("todo not found")
	// ErrTokenInvalid means a supplied token cannot be validated.
	ErrTokenInvalid = errors.New("token invalid or expired")
	// ErrForbidden means the caller may not act on another user's account.
	ErrForbidden = errors.New("forbidden")
)

// User models an account persisted in the users table.
type User struct {
	ID           int64  `db:"id" json:"id"`
	Email        string `db:"email" json:"email"`
	Name         string `db:"name" json:"name"`
	PasswordHash string `db:"password_hash" json:"password_hash,omitempty"`
	IsActive     bool   `db:"is_active" json:"is_active"`
}

// Sanitized returns a copy of the user without the password hash.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	copy := *u
	copy.PasswordHash = ""
	return &copy
}

// Todo is a task owned by exactly one user. Deleting the user deletes its todos.
type Todo struct {
	ID          int64  `db:"id" json:"id"`
	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`
	IsCompleted bool   `db:"is_completed" json:"is_completed"`
	UserID      int64  `db:"user_id" json:"user_id"`
}

// Identity is a credential record held by the identity provider. At most one
// one-time code is outstanding per identity; CodeExpiresAt is a Unix time in seconds.
type Identity struct {
	ID             int64  `db:"id" json:"id"`
	Subject        string `db:"subject" json:"subject"`
	SecretHash     string `db:"secret_hash" json:"secret_hash"`
	Contact        string `db:"contact" json:"contact"`
	Confirmed      bool   `db:"confirmed" json:"confirmed"`
	CodePurpose    string `db:"code_purpose" json:"code_purpose"`
	CodeHash       string `db:"code_hash" json:"code_hash"`
	CodeExpiresAt  int64  `db:"code_expires_at" json:"code_expires_at"`
	FailedAttempts int    `db:"failed_attempts" json:"failed_attempts"`
}
