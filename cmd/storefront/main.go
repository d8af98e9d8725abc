// Storefront BFF - serves cart, reconciliation and checkout to shoppers
// over REST and MCP, backed by the storefront API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/backend"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/clientheader"
	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := initLogger()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("backend_type", cfg.Backend.Type),
		slog.String("backend_url", cfg.Backend.URL),
		slog.String("cart_storage", cfg.Cart.Storage),
	)

	api, err := createBackend(cfg)
	if err != nil {
		return fmt.Errorf("creating backend: %w", err)
	}

	storage, closeStorage, err := createStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating cart storage: %w", err)
	}
	defer closeStorage()

	// Run refreshes once up front; a failed first refresh leaves the
	// snapshot empty and local stock checks permissive until the next tick.
	snap := catalog.New(api, logger)
	go snap.Run(ctx, cfg.CatalogRefresh)

	sessions := session.NewManager(session.Config{
		Backend:     api,
		Catalog:     snap,
		Storage:     storage,
		TaxRate:     cfg.TaxRate,
		IdleTimeout: cfg.SessionIdle,
		Logger:      logger,
	})
	go sessions.Run(ctx)

	h := handler.New(sessions, snap, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request id → logging → client header → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		clientheader.Middleware(cfg.MinClientVersion, logger),
	)(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// createBackend creates the storefront API client based on configuration.
func createBackend(cfg *config.Config) (backend.Backend, error) {
	switch cfg.Backend.Type {
	case config.BackendHTTP:
		return backend.NewHTTPClient(backend.Config{
			BaseURL:   cfg.Backend.URL,
			APIKey:    cfg.Backend.APIKey,
			Timeout:   cfg.Backend.Timeout,
			ChromeTLS: cfg.Backend.ChromeTLS,
		})
	case config.BackendFake:
		products := backend.DemoCatalog()
		if cfg.Backend.FakeCatalogFile != "" {
			loaded, err := backend.LoadFakeCatalog(cfg.Backend.FakeCatalogFile)
			if err != nil {
				return nil, err
			}
			products = loaded
		}
		return backend.NewFake(products), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Backend.Type)
	}
}

// createStorage returns the cart storage and a func releasing it.
func createStorage(ctx context.Context, cfg *config.Config) (cart.Storage, func(), error) {
	noop := func() {}
	switch cfg.Cart.Storage {
	case config.StorageMemory:
		return cart.NewMemoryStorage(), noop, nil
	case config.StorageFile:
		s, err := cart.NewFileStorage(cfg.Cart.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case config.StorageRedis:
		s, err := cart.NewRedisStorage(ctx, cfg.Cart.RedisURL, cfg.Cart.TTL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cart storage: %s", cfg.Cart.Storage)
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	return newLogger(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("ENVIRONMENT"))
}

func newLogger(w io.Writer, level, environment string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	if environment == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
