package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tally-systems/tally/internal/core/config"
	"github.com/tally-systems/tally/internal/eventlog"
	pgstore "github.com/tally-systems/tally/internal/eventlog/postgres"
	"github.com/tally-systems/tally/internal/ledger"
	"github.com/tally-systems/tally/internal/migrations"
	"github.com/tally-systems/tally/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"store_type", cfg.Store.Type,
		"max_attempts", cfg.Command.MaxAttempts)

	var (
		store  eventlog.Store
		pinger server.Pinger
	)
	switch cfg.Store.Type {
	case "postgres":
		adapter, err := pgstore.NewAdapter(
			cfg.Store.DSN,
			cfg.Store.MaxOpenConns,
			cfg.Store.MaxIdleConns,
		)
		if err != nil {
			slog.Error("Failed to initialize event store", "error", err)
			os.Exit(1)
		}
		defer adapter.Close()

		if err := migrations.RunMigrations(adapter.DB(), cfg.Store.AutoMigrate); err != nil {
			slog.Error("Failed to run database migrations", "error", err)
			os.Exit(1)
		}
		store, pinger = adapter, adapter
	default:
		mem := eventlog.NewMemoryStore()
		store, pinger = mem, mem
		slog.Warn("Using in-memory event store; events will not survive a restart")
	}

	svc := ledger.NewService(store, cfg.Command.MaxAttempts, cfg.Server.MaxBodySizeKB)

	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), pinger, cfg.Server.Mode)
	svc.RegisterRoutes(srv.Engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
