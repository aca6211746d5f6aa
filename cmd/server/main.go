// Command server runs the idevgames HTTP backend.
//
// Configuration comes from the environment; see internal/config for every
// key. SESSION_SECRET, GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET are required.
package main

import (
	"log/slog"
	"os"

	"github.com/sakif/idevgames/internal/config"
	"github.com/sakif/idevgames/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if err := cfg.ValidateServer(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
