/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the sales dataset ingestion server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load config (defaults -> salesboard.yaml -> SALESBOARD_* env)
  3. Initialize SQLite store
  4. Start the ingestion runner (background jobs + stale sweeper)
  5. Create API handler with dependencies
  6. Start HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (default: probe ./salesboard.yaml)
  -port    HTTP server port, overrides config (default: 8080)
  -db      SQLite database path, overrides config (default: salesboard.db)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Wait for in-flight ingestion jobs to finish
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/salesboard.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run with a config file
  ./server -config=/etc/salesboard.yaml

SEE ALSO:
  - config/config.go: Configuration layering
  - api/server.go: Router configuration
  - ingest/runner.go: Ingestion pipeline
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/salesboard/ingest-engine/api"
	"github.com/salesboard/ingest-engine/config"
	"github.com/salesboard/ingest-engine/ingest"
	"github.com/salesboard/ingest-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "path to YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Ingestion runner
	runner := ingest.NewRunner(store, ingest.RunnerOptions{
		SyncThreshold: cfg.SyncThresholdBytes,
		TopN:          cfg.TopN,
		StaleAfter:    cfg.StaleAfter,
		SweepInterval: cfg.SweepInterval,
		Logger:        log,
	})

	// Session store
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		// Ephemeral secret: sessions do not survive a restart.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			log.Error("failed to generate session secret", "error", err)
			os.Exit(1)
		}
		log.Warn("no session secret configured, using an ephemeral one")
	}

	// Handler and router
	handler := api.NewHandler(store, runner, api.NewSessionStore(secret), log)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		// Runs the startup stale sweep and the periodic sweeper.
		runner.Run(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		// Let in-flight ingestion jobs finish before the store closes.
		runner.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("exit", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
