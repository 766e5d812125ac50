package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/reviewloop/pkg/models"
)

// RunCommand returns the run command, the main entry point: it repeats fix
// cycles until the loop reaches a terminal state.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run fix cycles until the merge request feedback is resolved",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Action: runLoop,
	}
}

func runLoop(c *cli.Context) error {
	log := newLogger(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	controller, _, _, source, err := buildLoop(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("target", source.TargetID()).Msg("starting review loop")
	result, err := controller.Run(ctx)
	if err != nil {
		return err
	}

	switch result.Status {
	case models.CycleComplete:
		fmt.Println("All review feedback resolved")
	case models.CycleStopped:
		fmt.Printf("Loop stopped: %s\n", result.Reason)
	case models.CycleFailed:
		return fmt.Errorf("loop failed: %s", result.Reason)
	}
	return nil
}
