/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the console buyback and resale server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file + BUYBACK_* environment)
  2. Initialize logger
  3. Open SQLite store (migrations run on open)
  4. Create event bus, services and subscribers
  5. Start the auto-commit scheduler
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a TOML config file (default: ./config.toml when present)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with defaults
  ./server

  # Run with in-memory database
  BUYBACK_DATABASE_PATH=":memory:" ./server

  # Run with a config file
  ./server -config=/etc/buyback/config.toml

SEE ALSO:
  - config/config.go: Settings and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/console-buyback/api"
	"github.com/warp/console-buyback/buyback"
	"github.com/warp/console-buyback/catalog"
	"github.com/warp/console-buyback/compliance"
	"github.com/warp/console-buyback/config"
	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/events"
	"github.com/warp/console-buyback/inventory"
	"github.com/warp/console-buyback/logger"
	"github.com/warp/console-buyback/metrics"
	"github.com/warp/console-buyback/pricing"
	"github.com/warp/console-buyback/sales"
	"github.com/warp/console-buyback/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "TOML config file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	log = log.With(zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))

	// Initialize store
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	store, err := sqlite.New(cfg.Database.Path, log.Named("store"))
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Services share one bus; events are published after each unit commits.
	bus := events.NewBus(log.Named("events"))
	clock := core.Clock(core.SystemClock)

	engine := pricing.NewEngine(store, pricing.Options{
		NegativePolicy: cfg.Pricing.NegativePolicy,
		Publisher:      bus,
		Logger:         log.Named("pricing"),
		Clock:          clock,
	})
	ledger := inventory.NewLedger(store, inventory.Options{Publisher: bus, Logger: log.Named("inventory"), Clock: clock})
	buybackSvc := buyback.NewService(store, engine, ledger, buyback.Options{
		SelfShipBonus: cfg.Buyback.SelfShipBonus,
		Publisher:     bus,
		Logger:        log.Named("buyback"),
		Clock:         clock,
	})
	salesSvc := sales.NewService(store, engine, ledger, sales.Options{Publisher: bus, Logger: log.Named("sales"), Clock: clock})
	sales.NewRequoter(salesSvc).Attach(bus)

	collector := metrics.New()
	collector.Attach(bus)
	collector.WatchStock(ledger, log.Named("metrics"))

	handler := api.NewHandler(api.Services{
		Catalog:    catalog.NewService(store, log.Named("catalog"), clock),
		Pricing:    engine,
		Inventory:  ledger,
		Buyback:    buybackSvc,
		Sales:      salesSvc,
		Compliance: compliance.NewLedger(store),
	}, log.Named("api"), clock)

	scheduler := api.NewAutoCommitScheduler(buybackSvc, log)
	scheduler.CheckInterval = cfg.Buyback.AutoCommitInterval
	scheduler.Enabled = cfg.Buyback.AutoCommit
	handler.Scheduler = scheduler
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins:  cfg.HTTP.CORSAllowOrigins,
		MaxBodySize:     cfg.HTTP.MaxBodySize,
		Metrics:         collector,
		Logger:          log.Named("http"),
		EnableScenarios: cfg.App.IsDevelopment(),
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.App.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", server.Addr), zap.String("database", cfg.Database.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
