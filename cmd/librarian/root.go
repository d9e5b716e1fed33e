package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/library-lending-service/internal/config"
	"github.com/helixir/library-lending-service/internal/database"
	"github.com/helixir/library-lending-service/internal/observability"
)

func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "librarian",
		Short: "Administrative tasks for the library lending service",
		Long: `Librarian seeds the catalog and member directory and exports loan history.

Database settings are read the same way as the server: config.yaml, then
LIBRARY_* environment variables. A .env file in the working directory is
loaded first when present.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose logging")

	cmd.AddCommand(newSeedCmd(&verbose))
	cmd.AddCommand(newExportCmd(&verbose))

	return cmd
}

// env is what every subcommand needs: configuration, a logger, and a live
// database connection. Close must be called when done.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     *database.DB
}

func openEnv(ctx context.Context, component string, verbose bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := "info"
	if verbose {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.RFC3339,
	})
	logger = logger.With().Str("component", component).Logger()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := database.New(connectCtx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return &env{cfg: cfg, logger: logger, db: db}, nil
}

func (e *env) Close() {
	e.db.Close()
}
