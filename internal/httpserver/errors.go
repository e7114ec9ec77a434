package httpserver

import (
	"errors"
	"net/http"

	"accounts/backend/internal/domain/account"
	"accounts/backend/internal/infrastructure/identity"
	"accounts/backend/internal/repository"
	todousecase "accounts/backend/internal/usecase/todo"
	userusecase "accounts/backend/internal/usecase/user"
)

var errValidation = errors.New("validation failed")

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errValidation),
		errors.Is(err, userusecase.ErrInvalidInput),
		errors.Is(err, todousecase.ErrInvalidInput),
		errors.Is(err, identity.ErrInvalidCode):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrNotConfirmed),
		errors.Is(err, account.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, account.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, account.ErrEmailExists),
		errors.Is(err, identity.ErrIdentityExists):
		return http.StatusConflict
	case errors.Is(err, identity.ErrUnknownIdentity):
		return http.StatusNotFound
	case errors.Is(err, userusecase.ErrWorkflow):
		return http.StatusBadGateway
	case errors.Is(err, account.ErrUserNotFound),
		errors.Is(err, account.ErrTodoNotFound),
		errors.Is(err, repository.ErrEntityNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope. Internal failures are logged and their
// detail withheld from the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg(message)
	}
	detail := any(err.Error())
	if status == http.StatusInternalServerError {
		detail = http.StatusText(status)
	}
	var verr *validationError
	if errors.As(err, &verr) {
		detail = verr.Fields
	}
	writeError(w, status, message, detail)
}
