package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/fensak-dev/approval-engine/internal/config"
)

// ConfigCommand returns the "config" subcommand.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect engine configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Validate the configuration file",
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fmt.Println("Configuration is valid")
	return nil
}
