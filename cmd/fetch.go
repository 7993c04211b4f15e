package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/fensak-dev/approval-engine/internal/config"
	"github.com/fensak-dev/approval-engine/internal/patch"
	"github.com/fensak-dev/approval-engine/internal/source/bitbucket"
	"github.com/fensak-dev/approval-engine/internal/source/github"
	"github.com/fensak-dev/approval-engine/internal/source/gitlab"
)

// FetchCommand returns the "fetch" subcommand: it exercises one source
// adapter standalone against a live forge and prints the assembled
// PullRequestPatches, useful for inspecting exactly what a rule program
// will see before wiring it into "run".
func FetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a normalized change set from a forge",
		ArgsUsage: "OWNER/REPO PR_NUMBER",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "forge",
				Aliases:  []string{"f"},
				Usage:    "Forge to fetch from (github, bitbucket, gitlab)",
				Required: true,
			},
		},
		Action: runFetch,
	}
}

func runFetch(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("missing required arguments: OWNER/REPO PR_NUMBER")
	}

	repoRef := c.Args().Get(0)
	prNum, err := strconv.Atoi(c.Args().Get(1))
	if err != nil {
		return fmt.Errorf("invalid PR number %q: %w", c.Args().Get(1), err)
	}

	forgeName := c.String("forge")

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	forgeCfg := cfg.Forges[forgeName]

	owner, repo, err := splitOwnerRepo(repoRef)
	if err != nil {
		return err
	}

	ctx := context.Background()

	var patches patch.PullRequestPatches
	switch forgeName {
	case "github":
		client := github.NewClient(forgeCfg.Token, nil)
		patches, err = client.FetchPullRequestPatches(ctx, owner, repo, prNum)
	case "bitbucket":
		client := bitbucket.NewClient(forgeCfg.Token, nil)
		patches, err = client.FetchPullRequestPatches(ctx, owner, repo, prNum)
	case "gitlab":
		var client *gitlab.Client
		client, err = gitlab.NewClient(forgeCfg.Token, forgeCfg.URL)
		if err != nil {
			return fmt.Errorf("constructing gitlab client: %w", err)
		}
		patches, err = client.FetchMergeRequestPatches(ctx, owner+"/"+repo, prNum)
	default:
		return fmt.Errorf("unsupported forge: %s", forgeName)
	}
	if err != nil {
		return fmt.Errorf("fetching change set: %w", err)
	}

	out, err := json.MarshalIndent(patches, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding change set: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func splitOwnerRepo(ref string) (owner, repo string, err error) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '/' {
			return ref[:i], ref[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("expected OWNER/REPO, got %q", ref)
}
