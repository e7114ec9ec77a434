package main

import (
	"accounts/backend/internal/config"
	"accounts/backend/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "accounts",
		Short:        "User account and todo API backed by Postgres and a read-through cache.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

// bootstrap loads configuration and builds the process logger.
func bootstrap() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.LogLevel, cfg.Env), nil
}
