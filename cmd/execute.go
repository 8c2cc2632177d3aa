// Package cmd contains the command-line entry points.
//
// Following the pattern used by standard Go server binaries, all
// startup logic lives here and main.go stays a minimal shim.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/boganlabs/bogan/internal/app"
	"github.com/boganlabs/bogan/internal/config"
	"github.com/boganlabs/bogan/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.0.1"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point. It handles version/help flags
// before full initialization so they work even with invalid config.
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			printVersion()
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		}
	}

	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	return runServe(cfg, logger)
}

// initLogger builds the process logger. DEBUG in the environment (any
// value) lowers the level to debug.
func initLogger() log.Logger {
	return log.New(log.Config{
		Level: logLevel(),
		JSON:  true,
	})
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// runServe assembles the application and serves HTTP until SIGINT or
// SIGTERM.
func runServe(cfg *config.Config, logger log.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting interview engine", "version", AppVersion)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(context.Background()); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	return a.Run(ctx)
}

func printVersion() {
	fmt.Printf("bogan %s\n", AppVersion)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
}

func printHelp() {
	fmt.Print(`bogan - clinical interview engine

Usage:
  bogan            Start the HTTP API server
  bogan version    Show version information
  bogan help       Show this help

Environment:
  GEMINI_API_KEY   API key for the gemini provider
  OPENAI_API_KEY   API key for the openai provider
  DATABASE_URL     Overrides the postgres connection settings
  DEBUG            Enable debug logging
`)
}
