package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/reviewloop/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "reviewloop",
		Usage:   "Turn merge request review feedback into committed fixes",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "reviewloop.toml",
			},
		},
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.CycleCommand(),
			cmd.StatusCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
