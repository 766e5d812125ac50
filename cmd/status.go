package cmd

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"
)

// StatusCommand returns the status command, which prints the persisted
// session record for the configured target.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the persisted session state for the configured merge request",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "handled",
				Usage: "List every handled comment key",
			},
		},
		Action: runStatus,
	}
}

func runStatus(c *cli.Context) error {
	log := newLogger(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := newStore(cfg, log)
	if err != nil {
		return err
	}

	targetID := fmt.Sprintf("%s!%d", cfg.GitLab.Project, cfg.GitLab.MR)
	state, err := store.Open(targetID)
	if err != nil {
		return fmt.Errorf("opening session state: %w", err)
	}

	fmt.Printf("target:        %s\n", state.TargetID)
	fmt.Printf("cycles run:    %d\n", state.Cycle)
	fmt.Printf("handled items: %d\n", len(state.Handled))
	if state.LastPushed != "" {
		fmt.Printf("last pushed:   %s\n", state.LastPushed)
	}
	if !state.StartedAt.IsZero() {
		fmt.Printf("started at:    %s\n", state.StartedAt.Format("2006-01-02 15:04:05 MST"))
	}

	if c.Bool("handled") && len(state.Handled) > 0 {
		keys := make([]string, 0, len(state.Handled))
		for key := range state.Handled {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		fmt.Println("\nhandled:")
		for _, key := range keys {
			entry := state.Handled[key]
			fmt.Printf("  %s -> %s\n", key, entry.ResolvedBy)
		}
	}
	return nil
}
