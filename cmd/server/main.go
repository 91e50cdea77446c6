package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/ordertrack/internal/broadcast"
	"github.com/pscheid92/ordertrack/internal/config"
	"github.com/pscheid92/ordertrack/internal/domain"
	"github.com/pscheid92/ordertrack/internal/logging"
	"github.com/pscheid92/ordertrack/internal/mux"
	"github.com/pscheid92/ordertrack/internal/registry"
	"github.com/pscheid92/ordertrack/internal/server"
	"github.com/pscheid92/ordertrack/internal/store"
	"github.com/pscheid92/ordertrack/internal/version"
)

// storeBundle is the selected persistence backend plus its readiness probe
// and teardown.
type storeBundle struct {
	store   store.OrderStore
	name    string
	probe   func(context.Context) error
	cleanup func()
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStore(cfg *config.Config) storeBundle {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case cfg.RedisURL != "":
		client, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		return storeBundle{
			store:   store.NewRedisStore(client),
			name:    "redis",
			probe:   func(ctx context.Context) error { return client.Ping(ctx).Err() },
			cleanup: func() { _ = client.Close() },
		}

	case cfg.DatabaseURL != "":
		pool, err := store.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		return storeBundle{
			store:   store.NewPostgresStore(pool),
			name:    "postgres",
			probe:   pool.Ping,
			cleanup: pool.Close,
		}

	default:
		slog.Warn("No store configured, tracking state is in-memory only")
		return storeBundle{store: store.NewMemoryStore(), name: "memory", cleanup: func() {}}
	}
}

func runGracefulShutdown(srv *server.Server, dispatcher *broadcast.Dispatcher, reg *registry.Registry, cleanup func()) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		dispatcher.Stop()
		reg.Close()
		cleanup()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().Version)

	bundle := setupStore(cfg)
	slog.Info("Store configured", "backend", bundle.name)

	reg := registry.New(bundle.store, clock)
	warmupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := reg.Warmup(warmupCtx); err != nil {
		slog.Error("Failed to warm up registry", "error", err)
		os.Exit(1)
	}
	cancel()

	subs := mux.New(domain.AllowAll{}, cfg.MaxSubscriptionsPerConn)
	dispatcher := broadcast.NewDispatcher(reg.Events(), subs, clock)

	srv := server.NewServer(cfg, reg, subs, dispatcher, clock)
	if bundle.probe != nil {
		srv.AddHealthCheck(bundle.name, bundle.probe)
	}

	done := runGracefulShutdown(srv, dispatcher, reg, bundle.cleanup)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
