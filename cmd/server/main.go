/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the checklist audit engine. Handles configuration,
  dependency injection and graceful shutdown, plus a few operator commands
  that run against the same store without the HTTP server.

COMMANDS:
  serve    Run the HTTP API (default when no command is given)
  migrate  Create the schema and exit
  seed     Seed form definitions (built-in or --forms file) and exit
  matrix   Print a monthly matrix as JSON

STARTUP SEQUENCE (serve):
  1. Load .env, YAML config, AUDIT_* environment, then flags
  2. Build the zap logger
  3. Open the store (schema is migrated on open)
  4. Seed forms that have no items or columns yet
  5. Create API handler, router and Prometheus registry
  6. Start server with graceful shutdown

GLOBAL FLAGS:
  --config     YAML config path (default: audit.yaml, optional)
  --db-driver  sqlite3 | sqlite | pgx
  --db-dsn     Database path or connection string
               Use ":memory:" for an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./auditd serve --db-dsn=./data/audit.db

  # Run against PostgreSQL on a different port
  ./auditd serve --db-driver=pgx --db-dsn=postgres://audit@localhost/audit --port=3000

  # October matrix for line DISA-1
  ./auditd matrix --form=disa-machine-checklist --line=DISA-1 --year=2026 --month=10

SEE ALSO:
  - config/config.go: Settings and precedence
  - api/server.go: Router configuration
  - store/sqlstore/sqlstore.go: Database implementation
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/audit-engine/api"
	"github.com/warp/audit-engine/config"
	"github.com/warp/audit-engine/factory"
	"github.com/warp/audit-engine/generic"
	"github.com/warp/audit-engine/report"
	"github.com/warp/audit-engine/store/sqlstore"
)

// options holds the flag values shared by every command.
type options struct {
	configPath string
	driver     string
	dsn        string
	port       int
	formsFile  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "auditd",
		Short:         "Checklist audit engine for foundry production lines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "audit.yaml", "YAML config path")
	root.PersistentFlags().StringVar(&opts.driver, "db-driver", "", "database driver (sqlite3, sqlite, pgx)")
	root.PersistentFlags().StringVar(&opts.dsn, "db-dsn", "", "database path or connection string")
	root.PersistentFlags().StringVar(&opts.formsFile, "forms", "", "form definitions YAML (default: built-in)")

	serve := newServeCmd(opts)
	root.AddCommand(serve, newMigrateCmd(opts), newSeedCmd(opts), newMatrixCmd(opts))
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}

// =============================================================================
// SERVE
// =============================================================================

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cfg, logger)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "HTTP server port (overrides config)")
	return cmd
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	// Initialize store
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Forms.SeedOnStart {
		if err := seedForms(context.Background(), store, cfg.Forms.File, logger); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize handler
	handler := api.NewHandler(store, logger, reg)
	handler.AllowedOrigins = cfg.Server.AllowedOrigins
	handler.EnableScenarios = cfg.Server.DemoScenarios

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
		IdleTimeout:  cfg.Server.GetIdleTimeout(),
	}

	// Start server in goroutine
	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db_driver", cfg.Database.Driver),
			zap.Bool("demo_scenarios", cfg.Server.DemoScenarios))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeout())
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// =============================================================================
// OPERATOR COMMANDS
// =============================================================================

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Migrate(cmd.Context())
		},
	}
}

func newSeedCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed form definitions into an empty store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			return seedForms(cmd.Context(), store, cfg.Forms.File, logger)
		},
	}
}

func newMatrixCmd(opts *options) *cobra.Command {
	var (
		form, line  string
		year, month int
	)
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Print the monthly item x day matrix as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			today := generic.Today()
			if year == 0 {
				year = today.Year()
			}
			if month == 0 {
				month = int(today.Month())
			}
			m, err := report.NewAggregator(store).BuildMonthlyMatrix(cmd.Context(),
				generic.FormType(form), generic.LineID(line), time.Month(month), year)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		},
	}
	cmd.Flags().StringVar(&form, "form", "disa-machine-checklist", "form type")
	cmd.Flags().StringVar(&line, "line", "", "production line")
	cmd.Flags().IntVar(&year, "year", 0, "year (default: current)")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12 (default: current)")
	cmd.MarkFlagRequired("line")
	return cmd
}

// =============================================================================
// HELPERS
// =============================================================================

// setup loads configuration with flag overrides and builds the logger.
func setup(opts *options) (*config.Config, *zap.Logger, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.driver != "" {
		cfg.Database.Driver = opts.driver
	}
	if opts.dsn != "" {
		cfg.Database.DSN = opts.dsn
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.formsFile != "" {
		cfg.Forms.File = opts.formsFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openStore(cfg *config.Config, logger *zap.Logger) (*sqlstore.Store, error) {
	store, err := sqlstore.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Debug("database opened", zap.String("driver", cfg.Database.Driver))
	return store, nil
}

func seedForms(ctx context.Context, store generic.TxStore, path string, logger *zap.Logger) error {
	var (
		defs []factory.FormDefinition
		err  error
	)
	if path != "" {
		defs, err = factory.Load(path)
	} else {
		defs, err = factory.Builtin()
	}
	if err != nil {
		return fmt.Errorf("failed to load form definitions: %w", err)
	}

	res, err := factory.Seed(ctx, store, defs, logger)
	if err != nil {
		return fmt.Errorf("failed to seed forms: %w", err)
	}
	logger.Info("forms seeded",
		zap.Int("items", res.Items),
		zap.Int("columns", res.Columns),
		zap.Int("skipped", len(res.Skipped)))
	return nil
}
