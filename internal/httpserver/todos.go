package httpserver

import (
	"net/http"

	todousecase "accounts/backend/internal/usecase/todo"
)

type createTodoRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
}

type updateTodoRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	IsCompleted *bool   `json:"is_completed"`
}

func (s *Server) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	var req createTodoRequest
	if err := bind(w, r, &req); err != nil {
		s.respondError(w, r, "Failed to create todo", err)
		return
	}
	t, err := s.todos.Create(r.Context(), todousecase.CreateInput{
		UserID:      currentUser(r.Context()).ID,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		s.respondError(w, r, "Failed to create todo", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Todo created successfully", t)
}

func (s *Server) handleGetTodo(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.respondError(w, r, "Failed to get todo", err)
		return
	}
	t, err := s.todos.Get(r.Context(), currentUser(r.Context()).ID, id)
	if err != nil {
		s.respondError(w, r, "Failed to get todo", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Todo retrieved successfully", t)
}

func (s *Server) handleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.respondError(w, r, "Failed to update todo", err)
		return
	}
	var req updateTodoRequest
	if err := bind(w, r, &req); err != nil {
		s.respondError(w, r, "Failed to update todo", err)
		return
	}
	t, err := s.todos.Update(r.Context(), currentUser(r.Context()).ID, id, todousecase.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		IsCompleted: req.IsCompleted,
	})
	if err != nil {
		s.respondError(w, r, "Failed to update todo", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Todo updated successfully", t)
}

func (s *Server) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.respondError(w, r, "Failed to delete todo", err)
		return
	}
	if err := s.todos.Delete(r.Context(), currentUser(r.Context()).ID, id); err != nil {
		s.respondError(w, r, "Failed to delete todo", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Todo deleted successfully", nil)
}

func (s *Server) handleListTodos(w http.ResponseWriter, r *http.Request) {
	skip, take, err := pageParams(r)
	if err != nil {
		s.respondError(w, r, "Failed to list todos", err)
		return
	}
	page, err := s.todos.List(r.Context(), currentUser(r.Context()).ID, skip, take)
	if err != nil {
		s.respondError(w, r, "Failed to list todos", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Todos retrieved successfully", page)
}
