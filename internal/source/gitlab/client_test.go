package gitlab_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fensak-dev/approval-engine/internal/patch"
	"github.com/fensak-dev/approval-engine/internal/source/gitlab"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v4/projects/acme%2Fwidgets/merge_requests/1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"iid":            1,
			"description":    "no linked prs",
			"source_branch":  "feature",
			"target_branch":  "main",
			"state":          "opened",
			"diff_refs": map[string]any{
				"base_sha": "base123",
				"head_sha": "head123",
			},
		})
	})

	mux.HandleFunc("/api/v4/projects/acme%2Fwidgets/merge_requests/1/changes", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"iid": 1,
			"changes": []map[string]any{
				{
					"old_path":     "config.json",
					"new_path":     "config.json",
					"diff":         "@@ -1,3 +1,3 @@\n {\n-  \"subapp\": \"v1.1.0\"\n+  \"subapp\": \"v1.2.0\"\n }",
					"new_file":     false,
					"deleted_file": false,
					"renamed_file": false,
				},
			},
		})
	})

	mux.HandleFunc("/api/v4/projects/acme%2Fwidgets/repository/files/config.json/raw", func(w http.ResponseWriter, r *http.Request) {
		ref := r.URL.Query().Get("ref")
		if ref == "base123" {
			_, _ = w.Write([]byte(`{"subapp": "v1.1.0"}`))
			return
		}
		_, _ = w.Write([]byte(`{"subapp": "v1.2.0"}`))
	})

	return httptest.NewServer(mux)
}

func TestFetchMergeRequestPatches_ModifiedJSONFile(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client, err := gitlab.NewClient("dummy-token", server.URL)
	require.NoError(t, err)

	patches, err := client.FetchMergeRequestPatches(context.Background(), "acme/widgets", 1)
	require.NoError(t, err)

	assert.Equal(t, "feature", patches.Metadata.SourceBranch)
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
