// Package cmd holds the reviewloop CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/reviewloop/internal/config"
	"github.com/reviewloop/internal/fixer"
	"github.com/reviewloop/internal/gitlab"
	"github.com/reviewloop/internal/gitops"
	"github.com/reviewloop/internal/loop"
	"github.com/reviewloop/internal/session"
	"github.com/reviewloop/internal/verify"
)

// newLogger builds the root logger. Every invocation gets a run id so
// interleaved logs from restarts stay attributable.
func newLogger(c *cli.Context) zerolog.Logger {
	level := zerolog.InfoLevel
	if c.Bool("verbose") {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Str("run_id", uuid.NewString()).
		Logger()
}

// loadConfig loads and validates the configuration named by the global flag.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newStore builds the configured session store backend.
func newStore(cfg *config.Config, log zerolog.Logger) (session.Store, error) {
	switch cfg.Session.Backend {
	case "file":
		return session.NewFileStore(cfg.Session.Dir, log), nil
	case "postgres":
		return session.NewPostgresStore(cfg.Session.DSN, log)
	default:
		return nil, fmt.Errorf("unsupported session backend %q", cfg.Session.Backend)
	}
}

// buildLoop wires the full collaborator graph for run and cycle.
func buildLoop(cfg *config.Config, log zerolog.Logger) (*loop.Controller, *loop.Executor, session.Store, *gitlab.Client, error) {
	source, err := gitlab.NewClient(cfg.GitLab, cfg.Bots, log)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	store, err := newStore(cfg, log)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	git := gitops.New(cfg.Git.WorkDir, cfg.Git.Remote, log)
	engine, err := fixer.New(cfg.Fix, git, log)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	verifier := verify.NewRunner(cfg.Verify.Timeout, cfg.Verify.StopOnFailure, log)

	executor := loop.NewExecutor(source, engine, git, verifier, store, cfg, log)
	controller := loop.NewController(executor, source, source, git, store, cfg, log)
	return controller, executor, store, source, nil
}
