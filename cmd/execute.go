// Package cmd contains the command-line entry points for coursemate.
//
// Following the pattern used by kubectl, hugo, and other standard Go CLI
// tools, all application logic lives here and main.go stays a minimal
// entry point.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/coursemate/coursemate/internal/log"
)

// Execute is the main entry point for the coursemate CLI. It routes the
// first argument to a subcommand; with no argument the supervisor mode
// (`up`) runs, which starts the API and web services together.
func Execute() error {
	cmd := "up"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "up":
		return runUp()
	case "serve":
		return runServe()
	case "web":
		return runWeb()
	case "setup":
		return runSetup(args)
	case "version", "--version", "-v":
		printVersion()
		return nil
	case "help", "--help", "-h":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// initLogger builds the process logger. DEBUG in the environment switches
// to debug level; COURSEMATE_LOG_JSON switches to JSON output for log
// collectors.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("COURSEMATE_LOG_JSON") != "" {
		cfg.JSON = true
	}
	logger := log.New(cfg)
	slog.SetDefault(logger)
	return logger
}

func printHelp() {
	fmt.Print(`coursemate - AI 課程推薦系統

Usage:
  coursemate [command]

Commands:
  up       Start the API service and the web frontend under one supervisor (default)
  serve    Start the recommendation API service only
  web      Start the web frontend only
  setup    Run database migrations and build the knowledge base
  version  Print version information
  help     Show this help

Environment:
  OPENAI_API_KEY   Required for serve, up and setup
  DATABASE_URL     Overrides the postgres_* settings from config.yaml
  DEBUG            Enable debug logging
`)
}
