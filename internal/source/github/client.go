// Package github assembles PullRequestPatches from a REST-per-file forge
// (§4.D) — a paginated `.../pulls/{n}/files` listing where each entry
// already embeds its own unified diff, GitHub's actual wire shape.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/fensak-dev/approval-engine/internal/diffparse"
	"github.com/fensak-dev/approval-engine/internal/enginerr"
	"github.com/fensak-dev/approval-engine/internal/frontmatter"
	"github.com/fensak-dev/approval-engine/internal/objdiff"
	"github.com/fensak-dev/approval-engine/internal/patch"
)

const defaultBaseURL = "https://api.github.com"

// Client talks to the GitHub REST API, following the teacher's
// FetchGitHubPRCommitsV2-style request construction (explicit headers,
// a bounded-timeout http.Client, no generated SDK).
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	parser     *diffparse.Parser
}

// NewClient builds a Client. httpClient may be nil, in which case a
// 30-second-timeout client is used, matching the teacher's own default.
func NewClient(token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
		token:      token,
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		parser:     diffparse.NewParser(),
	}
}

// SetBaseURLForTesting points the client at a fake server instead of the
// real GitHub API. Production callers never need this; it exists so
// tests can exercise the adapter against httptest.Server.
func SetBaseURLForTesting(c *Client, baseURL string) {
	c.baseURL = baseURL
}

func (c *Client) doJSON(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return enginerr.Wrap(enginerr.EngineInternalError, "rate limiter wait", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return enginerr.Wrap(enginerr.EngineInternalError, "building github request", err)
	}
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "approval-engine")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return enginerr.Wrap(enginerr.InconsistentForgeResponse, "github request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return enginerr.Newf(enginerr.InconsistentForgeResponse, "github request to %s failed with status %d: %s", url, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return enginerr.Wrap(enginerr.InconsistentForgeResponse, "decoding github response", err)
	}
	return nil
}

// FetchPullRequestPatches assembles the normalized change set for one
// GitHub pull request, per §4.D's status-to-PatchOp table and §4.G's
// front-matter extraction.
func (c *Client) FetchPullRequestPatches(ctx context.Context, owner, repo string, prNum int) (patch.PullRequestPatches, error) {
	var pr pullRequestResponse
	prURL := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, owner, repo, prNum)
	if err := c.doJSON(ctx, prURL, &pr); err != nil {
		return patch.PullRequestPatches{}, err
	}

	linkedPRs, err := c.resolveLinkedPRs(ctx, owner, repo, pr.Body)
	if err != nil {
		return patch.PullRequestPatches{}, err
	}

	files, err := c.listChangedFiles(ctx, owner, repo, prNum)
	if err != nil {
		return patch.PullRequestPatches{}, err
	}

	var patches []patch.Patch
	for _, f := range files {
		filePatches, err := c.buildFilePatches(ctx, owner, repo, pr.Base.Ref, pr.Head.Ref, f)
		if err != nil {
			return patch.PullRequestPatches{}, err
		}
		patches = append(patches, filePatches...)
	}

	return patch.PullRequestPatches{
		Metadata: patch.ChangeSetMetadata{
			SourceBranch: pr.Head.Ref,
			TargetBranch: pr.Base.Ref,
			LinkedPRs:    linkedPRs,
		},
		PatchList: patches,
	}, nil
}

func (c *Client) resolveLinkedPRs(ctx context.Context, owner, repo, body string) ([]patch.LinkedPR, error) {
	refs, err := frontmatter.ExtractLinkedPRRefs(body)
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
		var linkedPR pullRequestResponse
		url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, refOwner, refRepo, ref.PrNum)
		if err := c.doJSON(ctx, url, &linkedPR); err != nil {
			return nil, err
		}
		out = append(out, patch.LinkedPR{
			Repo:     ref.Repo,
			PRNum:    ref.PrNum,
			IsMerged: linkedPR.Merged,
			IsClosed: linkedPR.State == "closed" || linkedPR.Merged,
		})
	}
	return out, nil
}

func splitRepo(fullName string) (owner, repo string, err error) {
	for i := 0; i < len(fullName); i++ {
		if fullName[i] == '/' {
			return fullName[:i], fullName[i+1:], nil
		}
	}
	return "", "", enginerr.Newf(enginerr.InconsistentForgeResponse, "malformed repo reference %q", fullName)
}

// listChangedFiles pages sequentially through .../pulls/{n}/files,
// rate-limited via the shared limiter (§9's permitted optimization is
// concurrent pages provided output order matches listing order; this
// adapter keeps the simpler sequential form and reserves the limiter
// for a future bounded worker pool).
func (c *Client) listChangedFiles(ctx context.Context, owner, repo string, prNum int) ([]pullRequestFile, error) {
	var all []pullRequestFile
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=100&page=%d", c.baseURL, owner, repo, prNum, page)
		var pageFiles []pullRequestFile
		if err := c.doJSON(ctx, url, &pageFiles); err != nil {
			return nil, err
		}
		all = append(all, pageFiles...)
		if len(pageFiles) < 100 {
			break
		}
	}
	return all, nil
}

func (c *Client) buildFilePatches(ctx context.Context, owner, repo, baseRef, headRef string, f pullRequestFile) ([]patch.Patch, error) {
	switch f.Status {
	case "added", "copied":
		return c.buildOneFilePatch(ctx, owner, repo, baseRef, headRef, patch.PatchInsert, f.Filename, f)
	case "removed":
		return c.buildOneFilePatch(ctx, owner, repo, baseRef, headRef, patch.PatchDelete, f.Filename, f)
	case "modified", "changed":
		return c.buildOneFilePatch(ctx, owner, repo, baseRef, headRef, patch.PatchModified, f.Filename, f)
	case "renamed":
		return c.buildRenamePatches(ctx, owner, repo, baseRef, headRef, f)
	default:
		return nil, enginerr.Newf(enginerr.UnknownFileStatus, "unrecognized github file status %q for %s", f.Status, f.Filename)
	}
}

func (c *Client) buildOneFilePatch(ctx context.Context, owner, repo, baseRef, headRef string, op patch.PatchOp, path string, f pullRequestFile) ([]patch.Patch, error) {
	hunks, err := c.parseHunks(f.Patch)
	if err != nil {
		return nil, err
	}
	objDiff, err := c.buildObjectDiff(ctx, owner, repo, baseRef, headRef, path, path, op)
	if err != nil {
		return nil, err
	}
	return []patch.Patch{{
		Path:       path,
		Op:         op,
		Additions:  f.Additions,
		Deletions:  f.Deletions,
		Diff:       hunks,
		ObjectDiff: objDiff,
	}}, nil
}

// buildRenamePatches emits the 3-record shape both source adapters
// normalize to per SPEC_FULL.md §4.E: Delete(oldPath), Insert(newPath),
// Modified(newPath, diff, objectDiff computed across the rename).
func (c *Client) buildRenamePatches(ctx context.Context, owner, repo, baseRef, headRef string, f pullRequestFile) ([]patch.Patch, error) {
	if f.PreviousFilename == "" {
		return nil, enginerr.Newf(enginerr.InconsistentForgeResponse, "github reported status \"renamed\" for %s without a previous_filename", f.Filename)
	}
	oldPath := f.PreviousFilename
	newPath := f.Filename

	deleteDiff, err := c.buildObjectDiff(ctx, owner, repo, baseRef, headRef, oldPath, oldPath, patch.PatchDelete)
	if err != nil {
		return nil, err
	}
	insertDiff, err := c.buildObjectDiff(ctx, owner, repo, baseRef, headRef, newPath, newPath, patch.PatchInsert)
	if err != nil {
		return nil, err
	}
	modifiedDiff, err := c.buildObjectDiff(ctx, owner, repo, baseRef, headRef, oldPath, newPath, patch.PatchModified)
	if err != nil {
		return nil, err
	}
	hunks, err := c.parseHunks(f.Patch)
	if err != nil {
		return nil, err
	}

	return []patch.Patch{
		{Path: oldPath, Op: patch.PatchDelete, ObjectDiff: deleteDiff},
		{Path: newPath, Op: patch.PatchInsert, ObjectDiff: insertDiff},
		{Path: newPath, Op: patch.PatchModified, Additions: f.Additions, Deletions: f.Deletions, Diff: hunks, ObjectDiff: modifiedDiff},
	}, nil
}

func (c *Client) parseHunks(diffText string) ([]patch.Hunk, error) {
	if diffText == "" {
		return nil, nil
	}
	return c.parser.ParseHunks(diffText)
}

// buildObjectDiff applies §4.C's ref-fetch rule: Insert fetches only the
// head-side content, Delete only the base-side, Modified both.
func (c *Client) buildObjectDiff(ctx context.Context, owner, repo, baseRef, headRef, basePath, headPath string, op patch.PatchOp) (*patch.ObjectDiff, error) {
	parserFn, ok := objdiff.ParserForPath(headPath)
	if !ok {
		return nil, nil
	}

	var previous, current any
	switch op {
	case patch.PatchInsert:
		content, err := c.fetchContent(ctx, owner, repo, headPath, headRef)
		if err != nil {
			return nil, err
		}
		current, err = parserFn(content)
		if err != nil {
			return nil, err
		}
	case patch.PatchDelete:
		content, err := c.fetchContent(ctx, owner, repo, basePath, baseRef)
		if err != nil {
			return nil, err
		}
		previous, err = parserFn(content)
		if err != nil {
			return nil, err
		}
	case patch.PatchModified:
		baseContent, err := c.fetchContent(ctx, owner, repo, basePath, baseRef)
		if err != nil {
			return nil, err
		}
		headContent, err := c.fetchContent(ctx, owner, repo, headPath, headRef)
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

func (c *Client) fetchContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	escapedPath := (&url.URL{Path: path}).EscapedPath()
	reqURL := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", c.baseURL, owner, repo, escapedPath, url.QueryEscape(ref))
	var resp contentsResponse
	if err := c.doJSON(ctx, reqURL, &resp); err != nil {
		return nil, err
	}
	if resp.Type != "file" {
		return nil, enginerr.Newf(enginerr.InconsistentForgeResponse, "expected file contents for %s, got type %q", path, resp.Type)
	}
	decoded, err := base64.StdEncoding.DecodeString(stripNewlines(resp.Content))
	if err != nil {
		return nil, enginerr.Wrap(enginerr.InconsistentForgeResponse, "decoding base64 file contents", err)
	}
	return decoded, nil
}

func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
