package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/fensak-dev/approval-engine/cmd"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "enginectl",
		Usage:   "Sandboxed approval-rule execution engine for pull-request change sets",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
		},
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.FetchCommand(),
			cmd.ConfigCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
