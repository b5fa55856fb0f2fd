package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskmaster/planner/internal/adapters/gemini"
	"github.com/taskmaster/planner/internal/adapters/repository/cache"
	"github.com/taskmaster/planner/internal/adapters/repository/notion"
	"github.com/taskmaster/planner/internal/adapters/repository/postgres"
	"github.com/taskmaster/planner/internal/application/services"
	"github.com/taskmaster/planner/internal/infrastructure/config"
	"github.com/taskmaster/planner/internal/infrastructure/database"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/infrastructure/metrics"
	"github.com/taskmaster/planner/internal/infrastructure/server"
	"github.com/taskmaster/planner/internal/ports"
)

// Set at build time with -ldflags "-X .../commands.Version=...".
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the planner API server",
		Long:  "Start the planner API server backed by Notion or PostgreSQL, with Firebase authentication and optional Gemini assistance",
		Run: func(cmd *cobra.Command, args []string) {
			runServer()
		},
	}
}

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage the PostgreSQL task schema (up, down, version)",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Run all up migrations",
		Run: func(cmd *cobra.Command, args []string) {
			runMigration("up", 0)
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations (all, or --steps N)",
		Run: func(cmd *cobra.Command, args []string) {
			steps, _ := cmd.Flags().GetInt("steps")
			runMigration("down", steps)
		},
	}
	downCmd.Flags().Int("steps", 0, "Number of migrations to revert (0 reverts all)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		Run: func(cmd *cobra.Command, args []string) {
			showMigrationVersion()
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd)
	return migrateCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print planner version",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Planner %s\n", Version)
			fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
			if cfg, err := config.Load(); err == nil {
				fmt.Fprintf(out, "Git Commit: %s\n", cfg.Build.CommitSHA)
				if cfg.Build.Branch != "" {
					fmt.Fprintf(out, "Branch: %s\n", cfg.Build.Branch)
				}
			}
		},
	}
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	loc, err := cfg.App.Location()
	if err != nil {
		appLogger.Fatalw("Invalid timezone", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(cfg, loc, appLogger)
	if err != nil {
		appLogger.Fatalw("Failed to open task backend", "backend", cfg.Storage.Backend, "error", err)
	}
	defer closeRepo()

	if cfg.Redis.URL != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			appLogger.Fatalw("Failed to connect to Redis", "error", err)
		}
		defer rdb.Close()
		repo = cache.New(repo, rdb, cfg.Redis, loc, appLogger)
		appLogger.Infow("Task list cache enabled", "ttl", cfg.Redis.TTL)
	}

	deps := server.Dependencies{
		Tasks:    repo,
		Verifier: services.NewAuthService(cfg.Firebase, nil, appLogger),
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.New()
	}

	generator, err := gemini.New(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		appLogger.Fatalw("Failed to initialize Gemini", "error", err)
	}
	if generator != nil {
		deps.Generator = generator
	} else {
		appLogger.Warn("GEMINI_API_KEY not set; AI endpoints will report not configured")
	}

	srv, err := server.New(cfg, deps, appLogger)
	if err != nil {
		appLogger.Fatalw("Failed to initialize server", "error", err)
	}

	appLogger.Infow("Starting planner API server",
		"port", cfg.Server.Port,
		"environment", cfg.App.Environment,
		"backend", cfg.Storage.Backend,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalw("Server failed", "error", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Errorw("Graceful shutdown failed", "error", err)
		}
	}
}

// openRepository builds the configured task backend. The returned close
// function is always safe to call.
func openRepository(cfg *config.Config, loc *time.Location, appLogger *logger.Logger) (ports.TaskRepository, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := database.New(cfg.Database)
		if err != nil {
			return nil, func() {}, err
		}
		appLogger.Infow("Database connected", "pool", db.GetConnectionInfo())
		return postgres.NewTaskRepository(db.DB, loc, appLogger), func() { db.Close() }, nil
	default:
		httpClient := &http.Client{Timeout: cfg.Server.RequestTimeout}
		repo, err := notion.NewRepository(cfg.Notion, httpClient, loc, appLogger)
		if err != nil {
			return nil, func() {}, err
		}
		return repo, func() {}, nil
	}
}

func openMigrator() (*database.Migrator, func()) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Storage.Backend != config.BackendPostgres {
		log.Printf("Storage backend is %q; migrations only apply to %q", cfg.Storage.Backend, config.BackendPostgres)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	source := cfg.Database.MigrationsPath
	if !strings.Contains(source, "://") {
		source = "file://" + source
	}
	m, err := database.NewMigrator(db, source)
	if err != nil {
		db.Close()
		log.Fatalf("Failed to prepare migrations: %v", err)
	}
	return m, func() { db.Close() }
}

func runMigration(direction string, steps int) {
	m, closeDB := openMigrator()
	defer closeDB()

	var (
		changed bool
		err     error
	)
	switch direction {
	case "up":
		changed, err = m.Up()
	case "down":
		changed, err = m.Down(steps)
	}
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if !changed {
		fmt.Println("No migrations to run")
	} else {
		fmt.Printf("Migration %s completed successfully\n", direction)
	}
}

func showMigrationVersion() {
	m, closeDB := openMigrator()
	defer closeDB()

	version, dirty, err := m.Version()
	if err != nil {
		log.Fatalf("Failed to get migration version: %v", err)
	}

	fmt.Printf("Current migration version: %d\n", version)
	fmt.Printf("Dirty: %t\n", dirty)
}
