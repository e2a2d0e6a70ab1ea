package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coursemate/coursemate/internal/config"
	"github.com/coursemate/coursemate/internal/supervisor"
)

// runUp starts the API service and the web frontend as supervised child
// processes of this binary and keeps them running as one session: if
// either dies, both are stopped. Ctrl-C tears the whole session down.
//
// The signal handler only cancels the context; all teardown happens in the
// session so a second Ctrl-C during shutdown cannot leave orphans behind.
func runUp() error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// The API child requires the full configuration; checking it here
	// fails fast instead of spawning a child that exits immediately.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("getting user home directory: %w", err)
	}

	session := supervisor.NewSession(supervisor.Config{
		Children: []supervisor.Spec{
			{
				Name:     "api",
				Command:  []string{exe, "serve"},
				ReadyURL: cfg.APIBaseURL() + "/health",
				LogFile:  "api.log",
			},
			{
				Name:     "web",
				Command:  []string{exe, "web"},
				ReadyURL: cfg.WebBaseURL() + "/health",
				LogFile:  "web.log",
			},
		},
		LogDir:        cfg.Supervisor.LogDir,
		LockFile:      filepath.Join(home, ".coursemate", "supervisor.lock"),
		StartGap:      cfg.Supervisor.StartGap,
		SettleDelay:   cfg.Supervisor.SettleDelay,
		ProbeTimeout:  cfg.Supervisor.ProbeTimeout,
		Tick:          cfg.Supervisor.Tick,
		ShutdownGrace: cfg.Supervisor.ShutdownGrace,
	}, logger.With("component", "supervisor"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting supervised session",
		"api", cfg.APIAddr,
		"web", cfg.WebAddr,
		"logs", cfg.Supervisor.LogDir,
	)

	if code := session.Run(ctx); code != 0 {
		return errors.New("session ended abnormally, see the child logs")
	}
	logger.Info("session stopped")
	return nil
}
