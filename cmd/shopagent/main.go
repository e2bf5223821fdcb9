// shopagent - Storefront session gateway exposing shopping operations to
// agent frontends over MCP. Designed for Cloud Run deployment.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopagent/internal/agent"
	"shopagent/internal/config"
	"shopagent/internal/discovery"
	"shopagent/internal/middleware"
	"shopagent/internal/storefront"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("origin", cfg.Storefront.Origin),
		slog.String("environment", cfg.Environment),
		slog.String("ledger_path", cfg.Storefront.LedgerPath),
	)

	// Verify the storefront speaks a compatible API version before any
	// session work begins. A fetch failure is tolerated (older storefronts
	// have no discovery document); an incompatible version is not.
	if err := checkStorefront(ctx, cfg, logger); err != nil {
		return err
	}

	// Create the storefront client: credential store, dispatcher, renewal
	// coordinator, guest ledger, reconciler, and promotion engine.
	client, err := storefront.New(storefront.Config{
		Origin:           cfg.Storefront.Origin,
		APIKey:           cfg.Storefront.APIKey,
		PublicPaths:      cfg.Storefront.PublicPaths,
		PublicRoutes:     cfg.Storefront.PublicRoutes,
		LedgerPath:       cfg.Storefront.LedgerPath,
		CrossOriginCreds: cfg.Storefront.CrossOriginCreds,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("creating storefront client: %w", err)
	}
	defer client.Close()

	// Setup routes
	h := agent.New(client, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → logging → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.Logging(logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
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
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
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

// checkStorefront fetches the discovery profile and validates API version
// compatibility.
func checkStorefront(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	dc := discovery.NewClient(cfg.Storefront.Origin, nil)
	profile, err := dc.Fetch(ctx)
	if err != nil {
		logger.Warn("storefront discovery profile unavailable, skipping version check",
			slog.String("error", err.Error()))
		return nil
	}

	if err := discovery.CheckCompatibility(profile, cfg.Storefront.MinAPIVersion); err != nil {
		return fmt.Errorf("storefront incompatible: %w", err)
	}

	logger.Info("storefront profile verified",
		slog.String("name", profile.Name),
		slog.String("api_version", profile.APIVersion),
		slog.Int("capabilities", len(profile.Capabilities)),
	)
	return nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
