package httpserver

import (
	"fmt"
	"net/http"

	"accounts/backend/internal/domain/account"
	userusecase "accounts/backend/internal/usecase/user"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=255"`
	Password string `json:"password" validate:"required,min=8"`
}

type confirmRequest struct {
	Email            string `json:"email" validate:"required,email"`
	ConfirmationCode string `json:"confirmationCode" validate:"required"`
}

type authenticateRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type initiateResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type completeResetRequest struct {
	Email            string `json:"email" validate:"required,email"`
	NewPassword      string `json:"newPassword" validate:"required,min=8"`
	ConfirmationCode string `json:"confirmationCode" validate:"required,len=6,numeric"`
}

type updateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Name     *string `json:"name" validate:"omitempty,max=255"`
	Password *string `json:"password"`
	IsActive *bool   `json:"is_active"`
}

var errPasswordNotUpdatable = &validationError{Fields: map[string]string{
	"password": "password cannot be changed here, use the password reset flow",
}}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := bind(w, r, &req); err != nil {
		s.respondError(w, r, "Registration failed", err)
		return
	}
	u, err := s.users.Register(r.Context(), userusecase.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		s.respondError(w, r, "Registration failed", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "User registered successfully", u)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := bind(w, r, &req); err != nil {
		s.respondError(w, r, "Confirmation failed", err)
		return
	}
	if err := s.users.ConfirmRegistration(r.Context(), req.Email, req.ConfirmationCode); err != nil {
		s.respondError(w, r, "Confirmation failed", err)
		return
	}
	writeSuccess(w, http.StatusOK, "User confirmed successfully", nil)
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := bind(w, r, &req); err != nil {
		s.respondError(w, r, "Authentication failed", err)
		return
	}
	result, err := s.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondError(w, r, "Authentication failed", err)
		return
	}
	writeSuccess(w, http.StatusOK, "User authenticated successfully", result)
}

func (s *Server) handleInitiateReset(w http.ResponseWriter, r *http.Request) {
	var req initiateResetRequest
	if err := bind(w, r, &req); err != nil {
		s.respondError(w, r, "Password reset initiation failed", err)
		return
	}
	if err := s.users.InitiatePasswordReset(r.Context(), req.Email); err != nil {
		s.respondError(w, r, "Password reset initiation failed", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password reset code sent", nil)
}

func (s *Server) handleCompleteReset(w http.ResponseWriter, r *http.Request) {
	var req completeResetRequest
	if err := bind(w, r, &req); err != nil {
		s.respondError(w, r, "Password reset failed", err)
		return
	}
	if err := s.users.CompletePasswordReset(r.Context(), req.Email, req.NewPassword, req.ConfirmationCode); err != nil {
		s.respondError(w, r, "Password reset failed", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password reset successfully", nil)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, "User retrieved successfully", currentUser(r.Context()))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := s.selfParam(r)
	if err != nil {
		s.respondError(w, r, "Failed to get user", err)
		return
	}
	u, err := s.users.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, "Failed to get user", err)
		return
	}
	writeSuccess(w, http.StatusOK, "User retrieved successfully", u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := s.selfParam(r)
	if err != nil {
		s.respondError(w, r, "Failed to update user", err)
		return
	}
	var req updateUserRequest
	if err := bind(w, r, &req); err != nil {
		s.respondError(w, r, "Failed to update user", err)
		return
	}
	if req.Password != nil {
		s.respondError(w, r, "Failed to update user", errPasswordNotUpdatable)
		return
	}
	u, err := s.users.Update(r.Context(), id, userusecase.UpdateInput{
		Email:    req.Email,
		Name:     req.Name,
		IsActive: req.IsActive,
	})
	if err != nil {
		s.respondError(w, r, "Failed to update user", err)
		return
	}
	writeSuccess(w, http.StatusOK, "User updated successfully", u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := s.selfParam(r)
	if err != nil {
		s.respondError(w, r, "Failed to delete user", err)
		return
	}
	if err := s.users.Delete(r.Context(), id); err != nil {
		s.respondError(w, r, "Failed to delete user", err)
		return
	}
	writeSuccess(w, http.StatusOK, "User deleted successfully", nil)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	skip, take, err := pageParams(r)
	if err != nil {
		s.respondError(w, r, "Failed to list users", err)
		return
	}
	page, err := s.users.List(r.Context(), skip, take)
	if err != nil {
		s.respondError(w, r, "Failed to list users", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Users retrieved successfully", page)
}

// selfParam reads the {id} path parameter and requires it to name the caller.
func (s *Server) selfParam(r *http.Request) (int64, error) {
	id, err := idParam(r)
	if err != nil {
		return 0, err
	}
	if u := currentUser(r.Context()); u == nil || u.ID != id {
		return 0, fmt.Errorf("%w: user %d belongs to another account", account.ErrForbidden, id)
	}
	return id, nil
}
