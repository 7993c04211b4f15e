package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/fensak-dev/approval-engine/internal/config"
	"github.com/fensak-dev/approval-engine/internal/enginelog"
	"github.com/fensak-dev/approval-engine/internal/patch"
	"github.com/fensak-dev/approval-engine/internal/sandbox"
)

// RunCommand returns the "run" subcommand: it loads a rule program and a
// serialized change set from disk, executes the rule in the sandbox, and
// prints the verdict as JSON, the way the teacher's review command loads
// a config and a target and prints a structured result.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute an approval rule against a change set",
		ArgsUsage: "RULE_FILE CHANGESET_FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-mode",
				Aliases: []string{"l"},
				Usage:   "Override sandbox log mode (drop, console, capture)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose host logging",
			},
		},
		Action: runRuleCmd,
	}
}

func runRuleCmd(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("missing required arguments: RULE_FILE CHANGESET_FILE")
	}

	ruleFile := c.Args().Get(0)
	changesetFile := c.Args().Get(1)

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logMode := enginelog.LogMode(cfg.Sandbox.LogMode)
	if override := c.String("log-mode"); override != "" {
		logMode = enginelog.LogMode(override)
	}

	host := enginelog.NewHostLogger(c.Bool("verbose"))

	programBytes, err := os.ReadFile(ruleFile)
	if err != nil {
		return fmt.Errorf("reading rule file: %w", err)
	}

	changesetBytes, err := os.ReadFile(changesetFile)
	if err != nil {
		return fmt.Errorf("reading change set file: %w", err)
	}

	var patches patch.PullRequestPatches
	if err := json.Unmarshal(changesetBytes, &patches); err != nil {
		return fmt.Errorf("decoding change set: %w", err)
	}

	logScope := enginelog.New(host, logMode)

	opts := sandbox.RunOptions{
		LogMode:       logMode,
		MaxRuntimeMS:  cfg.Sandbox.MaxRuntimeMS,
		StepBatchSize: cfg.Sandbox.StepBatchSize,
		SleepMS:       cfg.Sandbox.SleepMS,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Sandbox.MaxRuntimeMS)*time.Millisecond+time.Second)
	defer cancel()

	result, state, err := sandbox.RunRule(ctx, string(programBytes), patches, opts, logScope)
	if err != nil {
		host.Error().Str("invocation_id", logScope.InvocationID()).Err(err).Msg("rule execution failed")
		return fmt.Errorf("rule execution failed (state=%d): %w", state, err)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
