package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"accounts/backend/internal/cache"
	"accounts/backend/internal/config"
	"accounts/backend/internal/domain/account"
	"accounts/backend/internal/httpserver"
	"accounts/backend/internal/infrastructure/identity"
	"accounts/backend/internal/infrastructure/password"
	"accounts/backend/internal/infrastructure/postgres"
	"accounts/backend/internal/infrastructure/sqlite"
	"accounts/backend/internal/infrastructure/token"
	"accounts/backend/internal/repository"
	todousecase "accounts/backend/internal/usecase/todo"
	userusecase "accounts/backend/internal/usecase/user"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	client, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	hasher := password.NewBcryptHasher(cfg.BcryptCost)
	tokens := token.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry, cfg.JWTIssuer)
	identities := repository.NewIdentityRepository(stores.identities, logger)
	idp := identity.NewLocalProvider(identities, hasher, tokens, codeSender(cfg, logger), identity.Config{
		ConfirmationTTL: cfg.ConfirmationCodeTTL,
		ResetTTL:        cfg.ResetCodeTTL,
	}, logger)

	users := repository.NewUserRepository(stores.users, client, logger)
	todos := repository.NewGeneric[account.Todo](stores.todos, client, repository.TodoSchema, logger)

	server := httpserver.NewServer(cfg,
		userusecase.NewService(users, idp, hasher, tokens, client, cfg.CacheTTL, cfg.PageCacheTTL, logger),
		todousecase.NewService(todos, users, client, cfg.CacheTTL, cfg.PageCacheTTL, logger),
		logger,
	)
	logger.Info().Str("addr", server.Addr()).Str("store", cfg.StoreDriver).Str("cache", cfg.CacheDriver).Msg("HTTP server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	logger.Info().Msg("graceful shutdown completed")
	return nil
}

type stores struct {
	users      repository.Store[account.User]
	todos      repository.Store[account.Todo]
	identities repository.Store[account.Identity]
}

// openStores connects the configured backing store and migrates it.
func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (stores, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := postgres.New(ctx, postgres.Config{DSN: cfg.DatabaseURL, MaxConns: cfg.DatabaseMaxConns})
		if err != nil {
			return stores{}, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return stores{}, nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		return stores{
			users:      postgres.NewTable(db, repository.UserSchema),
			todos:      postgres.NewTable(db, repository.TodoSchema),
			identities: postgres.NewTable(db, repository.IdentitySchema),
		}, db.Close, nil
	default:
		db, err := sqlite.Open(ctx, sqlite.Config{DSN: cfg.SQLiteDSN})
		if err != nil {
			return stores{}, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return stores{}, nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		logger.Info().Str("dsn", cfg.SQLiteDSN).Msg("using sqlite store")
		return stores{
			users:      sqlite.NewTable(db, repository.UserSchema),
			todos:      sqlite.NewTable(db, repository.TodoSchema),
			identities: sqlite.NewTable(db, repository.IdentitySchema),
		}, db.Close, nil
	}
}

// codeSender mails codes through SMTP. Development runs without a relay log them instead.
func codeSender(cfg config.Config, logger zerolog.Logger) identity.CodeSender {
	if cfg.SMTPHost == "" && cfg.IsDevelopment() {
		logger.Warn().Msg("SMTP_HOST not set; verification codes are written to the log")
		return identity.LogSender{Logger: logger}
	}
	return identity.NewSMTPSender(identity.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, logger)
}

func openCache(ctx context.Context, cfg config.Config, logger zerolog.Logger) (cache.Client, func(), error) {
	switch cfg.CacheDriver {
	case config.CacheRedis:
		rc, err := cache.NewRedisClient(ctx, cache.RedisConfig{URL: cfg.RedisURL, PoolSize: cfg.RedisPoolSize}, logger)
		if err != nil {
			return nil, nil, err
		}
		return rc, func() { _ = rc.Close() }, nil
	case config.CacheNone:
		return cache.Nop{}, func() {}, nil
	default:
		return cache.NewMemoryClient(cache.MemoryConfig{Capacity: cfg.CacheCapacity}), func() {}, nil
	}
}
