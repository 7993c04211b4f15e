package github_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fensak-dev/approval-engine/internal/patch"
	"github.com/fensak-dev/approval-engine/internal/source/github"
)

// newTestServer wires a minimal fake GitHub REST API covering exactly
// the endpoints §6 lists: the PR resource, the paginated files listing,
// and the contents endpoint used for object-diff fetches.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/repos/acme/widgets/pulls/1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"body":   "no front matter here",
			"head":   map[string]any{"ref": "feature-branch"},
			"base":   map[string]any{"ref": "main"},
			"merged": false,
			"state":  "open",
		})
	})

	mux.HandleFunc("/repos/acme/widgets/pulls/1/files", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "" && r.URL.Query().Get("page") != "1" {
			_ = json.NewEncoder(w).Encode([]any{})
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"filename":  "config.json",
				"status":    "modified",
				"additions": 1,
				"deletions": 1,
				"patch":     "@@ -1,3 +1,3 @@\n {\n-  \"subapp\": \"v1.1.0\"\n+  \"subapp\": \"v1.2.0\"\n }",
			},
		})
	})

	mux.HandleFunc("/repos/acme/widgets/contents/config.json", func(w http.ResponseWriter, r *http.Request) {
		ref := r.URL.Query().Get("ref")
		var content string
		if ref == "main" {
			content = `{"subapp": "v1.1.0"}`
		} else {
			content = `{"subapp": "v1.2.0"}`
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":    "file",
			"content": base64.StdEncoding.EncodeToString([]byte(content)),
		})
	})

	return httptest.NewServer(mux)
}

func TestFetchPullRequestPatches_ModifiedJSONFile(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := github.NewClient("dummy-token", server.Client())
	github.SetBaseURLForTesting(client, server.URL)

	patches, err := client.FetchPullRequestPatches(context.Background(), "acme", "widgets", 1)
	require.NoError(t, err)

	assert.Equal(t, "feature-branch", patches.Metadata.SourceBranch)
	assert.Equal(t, "main", patches.Metadata.TargetBranch)
	assert.Empty(t, patches.Metadata.LinkedPRs)

	require.Len(t, patches.PatchList, 1)
	p := patches.PatchList[0]
	assert.Equal(t, "config.json", p.Path)
	assert.Equal(t, patch.PatchModified, p.Op)
	require.NotNil(t, p.ObjectDiff)
	require.Len(t, p.ObjectDiff.Diff, 1)
	assert.Equal(t, patch.ObjectModify, p.ObjectDiff.Diff[0].Type)
	assert.Equal(t, []any{"subapp"}, p.ObjectDiff.Diff[0].Path)
}

func TestFetchPullRequestPatches_LinkedPRFrontMatter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/2", func(w http.ResponseWriter, r *http.Request) {
		body := "---\nfensak:\n  linked:\n    - prNum: 41\n---\nSee linked PR.\n"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"body": body,
			"head": map[string]any{"ref": "feature"},
			"base": map[string]any{"ref": "main"},
		})
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/41", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"merged": true,
			"state":  "closed",
		})
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/2/files", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]any{})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := github.NewClient("dummy-token", server.Client())
	github.SetBaseURLForTesting(client, server.URL)

	patches, err := client.FetchPullRequestPatches(context.Background(), "acme", "widgets", 2)
	require.NoError(t, err)
	require.Len(t, patches.Metadata.LinkedPRs, 1)
	linked := patches.Metadata.LinkedPRs[0]
	assert.Equal(t, 41, linked.PRNum)
	assert.True(t, linked.IsMerged)
	assert.True(t, linked.IsClosed)
	assert.Empty(t, linked.Repo)
}

func TestFetchPullRequestPatches_RenamedFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/4", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"body": "", "head": map[string]any{"ref": "feature"}, "base": map[string]any{"ref": "main"},
		})
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/4/files", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"filename":          "new.txt",
				"previous_filename": "old.txt",
				"status":            "renamed",
				"additions":         2,
				"deletions":         1,
				"patch":             "@@ -1,1 +1,2 @@\n-old\n+new\n+line",
			},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := github.NewClient("dummy-token", server.Client())
	github.SetBaseURLForTesting(client, server.URL)

	patches, err := client.FetchPullRequestPatches(context.Background(), "acme", "widgets", 4)
	require.NoError(t, err)
	require.Len(t, patches.PatchList, 3)

	assert.Equal(t, "old.txt", patches.PatchList[0].Path)
	assert.Equal(t, patch.PatchDelete, patches.PatchList[0].Op)

	assert.Equal(t, "new.txt", patches.PatchList[1].Path)
	assert.Equal(t, patch.PatchInsert, patches.PatchList[1].Op)

	assert.Equal(t, "new.txt", patches.PatchList[2].Path)
	assert.Equal(t, patch.PatchModified, patches.PatchList[2].Op)
	assert.Equal(t, 2, patches.PatchList[2].Additions)
	assert.Equal(t, 1, patches.PatchList[2].Deletions)
}

func TestFetchPullRequestPatches_RenamedFileMissingPreviousFilenameFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/5", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"body": "", "head": map[string]any{"ref": "feature"}, "base": map[string]any{"ref": "main"},
		})
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/5/files", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"filename": "new.txt", "status": "renamed", "additions": 1, "deletions": 0},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := github.NewClient("dummy-token", server.Client())
	github.SetBaseURLForTesting(client, server.URL)

	_, err := client.FetchPullRequestPatches(context.Background(), "acme", "widgets", 5)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "InconsistentForgeResponse"))
}

func TestFetchPullRequestPatches_UnknownStatusFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/3", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"body": "", "head": map[string]any{"ref": "f"}, "base": map[string]any{"ref": "m"},
		})
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/3/files", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"filename": "weird.bin", "status": "unmergeable"},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := github.NewClient("dummy-token", server.Client())
	github.SetBaseURLForTesting(client, server.URL)

	_, err := client.FetchPullRequestPatches(context.Background(), "acme", "widgets", 3)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "UnknownFileStatus"))
}
