// Command kioku runs the memory store as an MCP stdio server: JSON-RPC
// requests on stdin, newline-framed JSON-RPC responses on stdout (spec.md
// §6 "External interfaces").
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kioku-ai/kioku"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(os.Getenv("KIOKU_LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := kioku.New(ctx, kioku.WithVersion(version), kioku.WithLogger(logger))
	if err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	defer func() { _ = app.Close(context.Background()) }()

	if err := app.Run(ctx); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	logger.Info("kioku stopped")
	return 0
}

func parseLogLevel(v string) slog.Level {
	switch v {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
