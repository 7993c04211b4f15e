// Package gitlab assembles PullRequestPatches from GitLab's merge
// request "changes" endpoint (§4.H) — a third REST-per-file vocabulary,
// structurally close to Component D's GitHub shape but expressed as an
// old/new path pair plus a boolean triplet (new_file, deleted_file,
// renamed_file) instead of a status string. Built on the generated
// gitlab.com/gitlab-org/api/client-go SDK rather than hand-rolled
// net/http, deliberately showing both request styles side by side with
// Components D and E.
package gitlab

import (
	"context"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/fensak-dev/approval-engine/internal/diffparse"
	"github.com/fensak-dev/approval-engine/internal/enginerr"
	"github.com/fensak-dev/approval-engine/internal/frontmatter"
	"github.com/fensak-dev/approval-engine/internal/objdiff"
	"github.com/fensak-dev/approval-engine/internal/patch"
)

// Client wraps a gitlab.Client scoped to one instance (gitlab.com or a
// self-hosted URL from EngineConfig's forges.gitlab.url).
type Client struct {
	gl     *gitlab.Client
	parser *diffparse.Parser
}

// NewClient builds a Client. baseURL is optional; empty selects
// gitlab.com.
func NewClient(token, baseURL string) (*Client, error) {
	var opts []gitlab.ClientOptionFunc
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(baseURL))
	}
	gl, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.EngineInternalError, "constructing gitlab client", err)
	}
	return &Client{gl: gl, parser: diffparse.NewParser()}, nil
}

// FetchMergeRequestPatches assembles the normalized change set for one
// GitLab merge request. projectPath is the "namespace/project" form the
// SDK accepts as a project ID interchangeably with the numeric ID.
func (c *Client) FetchMergeRequestPatches(ctx context.Context, projectPath string, mrIID int) (patch.PullRequestPatches, error) {
	mr, _, err := c.gl.MergeRequests.GetMergeRequest(projectPath, mrIID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return patch.PullRequestPatches{}, enginerr.Wrap(enginerr.InconsistentForgeResponse, "fetching gitlab merge request", err)
	}

	changes, _, err := c.gl.MergeRequests.GetMergeRequestChanges(projectPath, mrIID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return patch.PullRequestPatches{}, enginerr.Wrap(enginerr.InconsistentForgeResponse, "fetching gitlab merge request changes", err)
	}

	baseSHA, headSHA := mr.DiffRefs.BaseSha, mr.DiffRefs.HeadSha

	linkedPRs, err := c.resolveLinkedPRs(ctx, projectPath, mr.Description)
	if err != nil {
		return patch.PullRequestPatches{}, err
	}

	var patches []patch.Patch
	for _, ch := range changes.Changes {
		filePatches, err := c.buildFilePatches(ctx, projectPath, baseSHA, headSHA, ch)
		if err != nil {
			return patch.PullRequestPatches{}, err
		}
		patches = append(patches, filePatches...)
	}

	return patch.PullRequestPatches{
		Metadata: patch.ChangeSetMetadata{
			SourceBranch: mr.SourceBranch,
			TargetBranch: mr.TargetBranch,
			LinkedPRs:    linkedPRs,
		},
		PatchList: patches,
	}, nil
}

func (c *Client) resolveLinkedPRs(ctx context.Context, projectPath, description string) ([]patch.LinkedPR, error) {
	refs, err := frontmatter.ExtractLinkedPRRefs(description)
	if err != nil {
		return nil, err
	}
	out := make([]patch.LinkedPR, 0, len(refs))
	for _, ref := range refs {
		refProject := projectPath
		if ref.Repo != "" {
			refProject = ref.Repo
		}
		linkedMR, _, err := c.gl.MergeRequests.GetMergeRequest(refProject, ref.PrNum, nil, gitlab.WithContext(ctx))
		if err != nil {
			return nil, enginerr.Wrap(enginerr.InconsistentForgeResponse, "resolving linked gitlab merge request", err)
		}
		out = append(out, patch.LinkedPR{
			Repo:     ref.Repo,
			PRNum:    ref.PrNum,
			IsMerged: linkedMR.State == "merged",
			IsClosed: linkedMR.State != "opened",
		})
	}
	return out, nil
}

// buildFilePatches maps the boolean triplet onto the same PatchOp
// decision table Component D uses for GitHub's status strings.
func (c *Client) buildFilePatches(ctx context.Context, projectPath, baseSHA, headSHA string, ch *gitlab.MergeRequestDiff) ([]patch.Patch, error) {
	hunks, err := c.parser.ParseHunks(ch.Diff)
	if err != nil {
		return nil, err
	}
	additions, deletions := countLineOps(hunks)

	switch {
	case ch.NewFile:
		objDiff, err := c.buildObjectDiff(ctx, projectPath, baseSHA, headSHA, ch.NewPath, ch.NewPath, patch.PatchInsert)
		if err != nil {
			return nil, err
		}
		return []patch.Patch{{Path: ch.NewPath, Op: patch.PatchInsert, Additions: additions, Deletions: deletions, Diff: hunks, ObjectDiff: objDiff}}, nil
	case ch.DeletedFile:
		objDiff, err := c.buildObjectDiff(ctx, projectPath, baseSHA, headSHA, ch.OldPath, ch.OldPath, patch.PatchDelete)
		if err != nil {
			return nil, err
		}
		return []patch.Patch{{Path: ch.OldPath, Op: patch.PatchDelete, Additions: additions, Deletions: deletions, Diff: hunks, ObjectDiff: objDiff}}, nil
	case ch.RenamedFile:
		deleteDiff, err := c.buildObjectDiff(ctx, projectPath, baseSHA, headSHA, ch.OldPath, ch.OldPath, patch.PatchDelete)
		if err != nil {
			return nil, err
		}
		insertDiff, err := c.buildObjectDiff(ctx, projectPath, baseSHA, headSHA, ch.NewPath, ch.NewPath, patch.PatchInsert)
		if err != nil {
			return nil, err
		}
		modifiedDiff, err := c.buildObjectDiff(ctx, projectPath, baseSHA, headSHA, ch.OldPath, ch.NewPath, patch.PatchModified)
		if err != nil {
			return nil, err
		}
		return []patch.Patch{
			{Path: ch.OldPath, Op: patch.PatchDelete, ObjectDiff: deleteDiff},
			{Path: ch.NewPath, Op: patch.PatchInsert, ObjectDiff: insertDiff},
			{Path: ch.NewPath, Op: patch.PatchModified, Additions: additions, Deletions: deletions, Diff: hunks, ObjectDiff: modifiedDiff},
		}, nil
	default:
		objDiff, err := c.buildObjectDiff(ctx, projectPath, baseSHA, headSHA, ch.OldPath, ch.NewPath, patch.PatchModified)
		if err != nil {
			return nil, err
		}
		return []patch.Patch{{Path: ch.NewPath, Op: patch.PatchModified, Additions: additions, Deletions: deletions, Diff: hunks, ObjectDiff: objDiff}}, nil
	}
}

func countLineOps(hunks []patch.Hunk) (additions, deletions int) {
	for _, h := range hunks {
		for _, d := range h.DiffOperations {
			switch d.Op {
			case patch.LineInsert:
				additions++
			case patch.LineDelete:
				deletions++
			case patch.LineModified:
				additions++
				deletions++
			}
		}
	}
	return additions, deletions
}

func (c *Client) buildObjectDiff(ctx context.Context, projectPath, baseSHA, headSHA, basePath, headPath string, op patch.PatchOp) (*patch.ObjectDiff, error) {
	parserFn, ok := objdiff.ParserForPath(headPath)
	if !ok {
		return nil, nil
	}

	var previous, current any
	switch op {
	case patch.PatchInsert:
		content, err := c.fetchRawFile(ctx, projectPath, headPath, headSHA)
		if err != nil {
			return nil, err
		}
		current, err = parserFn(content)
		if err != nil {
			return nil, err
		}
	case patch.PatchDelete:
		content, err := c.fetchRawFile(ctx, projectPath, basePath, baseSHA)
		if err != nil {
			return nil, err
		}
		previous, err = parserFn(content)
		if err != nil {
			return nil, err
		}
	case patch.PatchModified:
		baseContent, err := c.fetchRawFile(ctx, projectPath, basePath, baseSHA)
		if err != nil {
			return nil, err
		}
		headContent, err := c.fetchRawFile(ctx, projectPath, headPath, headSHA)
		if err != nil {
			return nil, err
		}
		previous, err = parserFn(baseContent)
		if err != nil {
			return nil, err
		}
		current, err = parserFn(headContent)
		if err != nil {
			return nil, err
		}
	default:
		return nil, nil
	}
	return objdiff.Build(op, previous, current), nil
}

func (c *Client) fetchRawFile(ctx context.Context, projectPath, path, ref string) ([]byte, error) {
	content, _, err := c.gl.RepositoryFiles.GetRawFile(projectPath, path, &gitlab.GetRawFileOptions{Ref: gitlab.Ptr(ref)}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, enginerr.Wrap(enginerr.InconsistentForgeResponse, "fetching gitlab raw file "+path, err)
	}
	return content, nil
}
