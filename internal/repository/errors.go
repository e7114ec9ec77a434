package repository

import "errors"

// Kinds of failure reported across the repository boundary.
var (
	// ErrEntityNotFound means the id or key matched no row, or an update/delete affected zero rows.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrEntityPersistFailure means an insert, update or delete failed in the store.
	ErrEntityPersistFailure = errors.New("entity persist failure")
	// ErrRepository is any other store or cache fault.
	ErrRepository = errors.New("repository error")
)

// Errors returned by Store implementations.
var (
	// ErrNoRows is returned by a Store when a single-row read matches nothing.
	ErrNoRows = errors.New("no rows in result set")
	// ErrUnknownField is returned when a field name is not a writable column of the table.
	ErrUnknownField = errors.New("unknown field")
)

// Error describes a failed repository operation. Unwrap exposes only the Kind,
// so callers can classify the failure with errors.Is while the underlying store
// or cache error stays in the message.
type Error struct {
	Op    string
	Table string
	Kind  error
	Err   error
}

func (e *Error) Error() string {
	msg := e.Table + " " + e.Op + ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Kind }

// IsNotFound reports whether err is an ErrEntityNotFound failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}
