package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"accounts/backend/internal/config"
	todousecase "accounts/backend/internal/usecase/todo"
	userusecase "accounts/backend/internal/usecase/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Server wraps the HTTP server lifecycle.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	users      *userusecase.Service
	todos      *todousecase.Service
	logger     zerolog.Logger
	addr       string
}

// NewServer constructs a new Server with configured dependencies.
func NewServer(cfg config.Config, users *userusecase.Service, todos *todousecase.Service, logger zerolog.Logger) *Server {
	addr := cfg.HTTPPort
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	srv := &Server{
		router: chi.NewRouter(),
		users:  users,
		todos:  todos,
		logger: logger.With().Str("component", "HTTPServer").Logger(),
		addr:   addr,
	}
	srv.router.Use(withRequestID, srv.withLogging, middleware.Recoverer, withCORS(cfg.AllowedOrigins))
	srv.registerRoutes()

	srv.httpServer = &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeoutSec) * time.Second,
	}
	return srv
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/users", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/confirm", s.handleConfirm)
		r.Post("/authenticate", s.handleAuthenticate)
		r.Post("/password-reset/initiate", s.handleInitiateReset)
		r.Post("/password-reset/complete", s.handleCompleteReset)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.handleListUsers)
			r.Get("/me", s.handleCurrentUser)
			r.Get("/user/{id}", s.handleGetUser)
			r.Put("/user/{id}", s.handleUpdateUser)
			r.Delete("/user/{id}", s.handleDeleteUser)
		})
	})

	s.router.Route("/api/todos", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/", s.handleCreateTodo)
		r.Get("/", s.handleListTodos)
		r.Get("/{id}", s.handleGetTodo)
		r.Put("/{id}", s.handleUpdateTodo)
		r.Delete("/{id}", s.handleDeleteTodo)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start bootstraps the HTTP server on the configured address.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler with its middleware chain.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured network address for the HTTP server.
func (s *Server) Addr() string {
	return s.addr
}
