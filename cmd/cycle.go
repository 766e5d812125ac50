package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/reviewloop/pkg/models"
)

// CycleCommand returns the cycle command: a single fix cycle without the
// surrounding loop, useful for dry runs and CI jobs.
func CycleCommand() *cli.Command {
	return &cli.Command{
		Name:  "cycle",
		Usage: "Run exactly one fix cycle and print its outcome",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Action: runCycle,
	}
}

func runCycle(c *cli.Context) error {
	log := newLogger(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	_, executor, store, source, err := buildLoop(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state, err := store.Open(source.TargetID())
	if err != nil {
		return fmt.Errorf("opening session state: %w", err)
	}

	result := executor.RunCycle(ctx, state)
	fmt.Printf("cycle %d: %s", state.Cycle, result.Status)
	if result.Reason != "" {
		fmt.Printf(" (%s)", result.Reason)
	}
	if result.Status == models.CyclePushed {
		fmt.Printf(": fixed %d tasks at %s", result.FixedCount, result.Revision)
	}
	fmt.Println()

	if result.Status == models.CycleFailed {
		return fmt.Errorf("cycle failed: %s", result.Reason)
	}
	return nil
}
