// Package bitbucket assembles PullRequestPatches from a combined-diff
// forge (§4.E) — a single concatenated unified-diff text fetched from a
// pull request resource's `links.diff.href`, which this adapter splits
// per file at `diff --git` boundaries before handing each block to the
// shared unified-diff parser.
package bitbucket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fensak-dev/approval-engine/internal/diffparse"
	"github.com/fensak-dev/approval-engine/internal/enginerr"
	"github.com/fensak-dev/approval-engine/internal/frontmatter"
	"github.com/fensak-dev/approval-engine/internal/objdiff"
	"github.com/fensak-dev/approval-engine/internal/patch"
)

const defaultBaseURL = "https://api.bitbucket.org"

// Client talks to the Bitbucket Cloud REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	parser     *diffparse.Parser
}

// NewClient builds a Client. httpClient may be nil, in which case a
// 30-second-timeout client is used.
func NewClient(token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{httpClient: httpClient, baseURL: defaultBaseURL, token: token, parser: diffparse.NewParser()}
}

// SetBaseURLForTesting points the client at a fake server.
func SetBaseURLForTesting(c *Client, baseURL string) {
	c.baseURL = baseURL
}

type pullRequestResource struct {
	State       string          `json:"state"`
	Source      branchRef       `json:"source"`
	Destination branchRef       `json:"destination"`
	Rendered    renderedFields  `json:"rendered"`
	Links       pullRequestLinks `json:"links"`
}

type branchRef struct {
	Branch namedRef `json:"branch"`
	Commit hashRef  `json:"commit"`
}

type namedRef struct {
	Name string `json:"name"`
}

type hashRef struct {
	Hash string `json:"hash"`
}

type renderedFields struct {
	Description rawText `json:"description"`
}

type rawText struct {
	Raw string `json:"raw"`
}

type pullRequestLinks struct {
	Diff hrefLink `json:"diff"`
}

type hrefLink struct {
	Href string `json:"href"`
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.EngineInternalError, "building bitbucket request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.InconsistentForgeResponse, "bitbucket request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.InconsistentForgeResponse, "reading bitbucket response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, enginerr.Newf(enginerr.InconsistentForgeResponse, "bitbucket request to %s failed with status %d", url, resp.StatusCode)
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return enginerr.Wrap(enginerr.InconsistentForgeResponse, "decoding bitbucket response", err)
	}
	return nil
}

// FetchPullRequestPatches assembles the normalized change set for one
// Bitbucket pull request.
func (c *Client) FetchPullRequestPatches(ctx context.Context, owner, repo string, prNum int) (patch.PullRequestPatches, error) {
	var pr pullRequestResource
	prURL := fmt.Sprintf("%s/2.0/repositories/%s/%s/pullrequests/%d", c.baseURL, owner, repo, prNum)
	if err := c.getJSON(ctx, prURL, &pr); err != nil {
		return patch.PullRequestPatches{}, err
	}

	linkedPRs, err := c.resolveLinkedPRs(ctx, owner, repo, pr.Rendered.Description.Raw)
	if err != nil {
		return patch.PullRequestPatches{}, err
	}

	diffText, err := c.get(ctx, pr.Links.Diff.Href)
	if err != nil {
		return patch.PullRequestPatches{}, err
	}

	blocks := splitDiffByFile(string(diffText))
	var patches []patch.Patch
	for _, block := range blocks {
		filePatches, err := c.buildFilePatches(ctx, owner, repo, pr.Destination.Commit.Hash, pr.Source.Commit.Hash, block)
		if err != nil {
			return patch.PullRequestPatches{}, err
		}
		patches = append(patches, filePatches...)
	}

	return patch.PullRequestPatches{
		Metadata: patch.ChangeSetMetadata{
			SourceBranch: pr.Source.Branch.Name,
			TargetBranch: pr.Destination.Branch.Name,
			LinkedPRs:    linkedPRs,
		},
		PatchList: patches,
	}, nil
}

func (c *Client) resolveLinkedPRs(ctx context.Context, owner, repo, description string) ([]patch.LinkedPR, error) {
	refs, err := frontmatter.ExtractLinkedPRRefs(description)
	if err != nil {
		return nil, err
	}
	out := make([]patch.LinkedPR, 0, len(refs))
	for _, ref := range refs {
		refOwner, refRepo := owner, repo
		if ref.Repo != "" {
			refOwner, refRepo, err = splitRepo(ref.Repo)
			if err != nil {
				return nil, err
			}
		}
		var linked pullRequestResource
		url := fmt.Sprintf("%s/2.0/repositories/%s/%s/pullrequests/%d", c.baseURL, refOwner, refRepo, ref.PrNum)
		if err := c.getJSON(ctx, url, &linked); err != nil {
			return nil, err
		}
		out = append(out, patch.LinkedPR{
			Repo:     ref.Repo,
			PRNum:    ref.PrNum,
			IsMerged: linked.State == "MERGED",
			IsClosed: linked.State != "OPEN",
		})
	}
	return out, nil
}

func splitRepo(fullName string) (owner, repo string, err error) {
	idx := strings.IndexByte(fullName, '/')
	if idx < 0 {
		return "", "", enginerr.Newf(enginerr.InconsistentForgeResponse, "malformed repo reference %q", fullName)
	}
	return fullName[:idx], fullName[idx+1:], nil
}

// diffFileBlock is one `diff --git` section of a combined-diff text.
type diffFileBlock struct {
	oldPath string
	newPath string
	body    string
}

const devNull = "/dev/null"

// splitDiffByFile scans a concatenated unified-diff text for `diff
// --git a/<old> b/<new>` boundaries and harvests the `--- a/<path>` /
// `+++ b/<path>` header pair for each resulting block, the same
// line-scan-with-state idiom the hunk parser uses for `@@` boundaries.
func splitDiffByFile(diffText string) []diffFileBlock {
	lines := strings.Split(diffText, "\n")
	var blocks []diffFileBlock
	var cur *diffFileBlock
	var bodyLines []string

	flush := func() {
		if cur != nil {
			cur.body = strings.Join(bodyLines, "\n")
			blocks = append(blocks, *cur)
		}
		cur = nil
		bodyLines = nil
	}

	for _, line := range lines {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			cur = &diffFileBlock{}
			continue
		}
		if cur == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "--- "):
			cur.oldPath = trimGitPathPrefix(strings.TrimPrefix(line, "--- "))
		case strings.HasPrefix(line, "+++ "):
			cur.newPath = trimGitPathPrefix(strings.TrimPrefix(line, "+++ "))
		default:
			bodyLines = append(bodyLines, line)
		}
	}
	flush()
	return blocks
}

func trimGitPathPrefix(field string) string {
	field = strings.TrimSpace(field)
	if field == devNull {
		return devNull
	}
	if len(field) > 2 && (field[:2] == "a/" || field[:2] == "b/") {
		return field[2:]
	}
	return field
}

func (c *Client) buildFilePatches(ctx context.Context, owner, repo, baseHash, headHash string, block diffFileBlock) ([]patch.Patch, error) {
	isInsert := block.oldPath == devNull
	isDelete := block.newPath == devNull
	isRename := !isInsert && !isDelete && block.oldPath != block.newPath && block.oldPath != "" && block.newPath != ""

	hunks, err := c.parser.ParseHunks(block.body)
	if err != nil {
		return nil, err
	}
	additions, deletions := countLineOps(hunks)

	switch {
	case isInsert:
		objDiff, err := c.buildObjectDiff(ctx, owner, repo, baseHash, headHash, block.newPath, block.newPath, patch.PatchInsert)
		if err != nil {
			return nil, err
		}
		return []patch.Patch{{Path: block.newPath, Op: patch.PatchInsert, Additions: additions, Deletions: deletions, Diff: hunks, ObjectDiff: objDiff}}, nil
	case isDelete:
		objDiff, err := c.buildObjectDiff(ctx, owner, repo, baseHash, headHash, block.oldPath, block.oldPath, patch.PatchDelete)
		if err != nil {
			return nil, err
		}
		return []patch.Patch{{Path: block.oldPath, Op: patch.PatchDelete, Additions: additions, Deletions: deletions, Diff: hunks, ObjectDiff: objDiff}}, nil
	case isRename:
		deleteDiff, err := c.buildObjectDiff(ctx, owner, repo, baseHash, headHash, block.oldPath, block.oldPath, patch.PatchDelete)
		if err != nil {
			return nil, err
		}
		insertDiff, err := c.buildObjectDiff(ctx, owner, repo, baseHash, headHash, block.newPath, block.newPath, patch.PatchInsert)
		if err != nil {
			return nil, err
		}
		modifiedDiff, err := c.buildObjectDiff(ctx, owner, repo, baseHash, headHash, block.oldPath, block.newPath, patch.PatchModified)
		if err != nil {
			return nil, err
		}
		return []patch.Patch{
			{Path: block.oldPath, Op: patch.PatchDelete, ObjectDiff: deleteDiff},
			{Path: block.newPath, Op: patch.PatchInsert, ObjectDiff: insertDiff},
			{Path: block.newPath, Op: patch.PatchModified, Additions: additions, Deletions: deletions, Diff: hunks, ObjectDiff: modifiedDiff},
		}, nil
	default:
		objDiff, err := c.buildObjectDiff(ctx, owner, repo, baseHash, headHash, block.oldPath, block.newPath, patch.PatchModified)
		if err != nil {
			return nil, err
		}
		return []patch.Patch{{Path: block.newPath, Op: patch.PatchModified, Additions: additions, Deletions: deletions, Diff: hunks, ObjectDiff: objDiff}}, nil
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

func (c *Client) buildObjectDiff(ctx context.Context, owner, repo, baseHash, headHash, basePath, headPath string, op patch.PatchOp) (*patch.ObjectDiff, error) {
	parserFn, ok := objdiff.ParserForPath(headPath)
	if !ok {
		return nil, nil
	}

	var previous, current any
	switch op {
	case patch.PatchInsert:
		content, err := c.fetchSource(ctx, owner, repo, headHash, headPath)
		if err != nil {
			return nil, err
		}
		current, err = parserFn(content)
		if err != nil {
			return nil, err
		}
	case patch.PatchDelete:
		content, err := c.fetchSource(ctx, owner, repo, baseHash, basePath)
		if err != nil {
			return nil, err
		}
		previous, err = parserFn(content)
		if err != nil {
			return nil, err
		}
	case patch.PatchModified:
		baseContent, err := c.fetchSource(ctx, owner, repo, baseHash, basePath)
		if err != nil {
			return nil, err
		}
		headContent, err := c.fetchSource(ctx, owner, repo, headHash, headPath)
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

func (c *Client) fetchSource(ctx context.Context, owner, repo, hash, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/2.0/repositories/%s/%s/src/%s/%s", c.baseURL, owner, repo, hash, path)
	return c.get(ctx, url)
}
