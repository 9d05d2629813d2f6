// Command stubapi serves a local stand-in for the fuel API so the uploader
// can be exercised without the real service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/fuelsync/internal/config"
	"github.com/JonMunkholm/fuelsync/internal/logging"
	"github.com/JonMunkholm/fuelsync/internal/stubapi"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	closer, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Dir)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	token := cfg.StubToken()
	if token == "" {
		slog.Warn("no STUB_TOKEN or COMBUSTIVEL_API_TOKEN set; every upload will be rejected")
	}

	slog.Info("configuration loaded",
		"addr", cfg.Stub.Addr,
		"max_concurrent", cfg.Stub.MaxConcurrent,
		"max_file_size", cfg.API.MaxFileSize,
		"upload_route", cfg.API.UploadRoute,
	)

	server := stubapi.NewServer(stubapi.Options{
		Token:          token,
		MaxFileSize:    cfg.API.MaxFileSize,
		MaxConcurrent:  cfg.Stub.MaxConcurrent,
		UploadRoute:    cfg.API.UploadRoute,
		StatusRoute:    cfg.API.StatusRoute,
		TrustedProxies: cfg.Stub.TrustedProxies,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Stub.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("stub API starting", "addr", cfg.Stub.Addr)
	if err := server.Start(cfg.Stub.Addr); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
