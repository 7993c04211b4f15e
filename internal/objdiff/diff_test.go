package objdiff_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fensak-dev/approval-engine/internal/objdiff"
	"github.com/fensak-dev/approval-engine/internal/patch"
)

// S1: a single top-level key change.
func TestDiff_SingleChange(t *testing.T) {
	previous, err := objdiff.ParseJSON([]byte(`{"subapp": "v1.1.0"}`))
	require.NoError(t, err)
	current, err := objdiff.ParseJSON([]byte(`{"subapp": "v1.2.0"}`))
	require.NoError(t, err)

	changes := objdiff.Diff(previous, current)
	require.Len(t, changes, 1)
	assert.Equal(t, patch.ObjectModify, changes[0].Type)
	assert.Equal(t, []any{"subapp"}, changes[0].Path)
	assert.Equal(t, "v1.2.0", changes[0].Value)
	assert.Equal(t, "v1.1.0", changes[0].OldValue)
}

func TestDiff_CreateAndRemove(t *testing.T) {
	previous, _ := objdiff.ParseJSON([]byte(`{"a": 1, "b": 2}`))
	current, _ := objdiff.ParseJSON([]byte(`{"a": 1, "c": 3}`))

	changes := objdiff.Diff(previous, current)
	require.Len(t, changes, 2)

	byType := map[patch.ObjectChangeType]patch.ObjectChange{}
	for _, c := range changes {
		byType[c.Type] = c
	}
	assert.Equal(t, []any{"c"}, byType[patch.ObjectCreate].Path)
	assert.Equal(t, []any{"b"}, byType[patch.ObjectRemove].Path)
}

func TestDiff_NestedRecursion(t *testing.T) {
	previous, _ := objdiff.ParseJSON([]byte(`{"nested": {"x": 1}}`))
	current, _ := objdiff.ParseJSON([]byte(`{"nested": {"x": 2}}`))

	changes := objdiff.Diff(previous, current)
	require.Len(t, changes, 1)
	assert.Equal(t, []any{"nested", "x"}, changes[0].Path)
}

func TestDiff_SequenceGrowthAndShrink(t *testing.T) {
	previous, _ := objdiff.ParseJSON([]byte(`{"items": [1, 2]}`))
	grown, _ := objdiff.ParseJSON([]byte(`{"items": [1, 2, 3]}`))
	shrunk, _ := objdiff.ParseJSON([]byte(`{"items": [1]}`))

	growChanges := objdiff.Diff(previous, grown)
	require.Len(t, growChanges, 1)
	assert.Equal(t, patch.ObjectCreate, growChanges[0].Type)
	assert.Equal(t, []any{"items", 2}, growChanges[0].Path)

	shrinkChanges := objdiff.Diff(previous, shrunk)
	require.Len(t, shrinkChanges, 1)
	assert.Equal(t, patch.ObjectRemove, shrinkChanges[0].Type)
	assert.Equal(t, []any{"items", 1}, shrinkChanges[0].Path)
}

// Strict scalar equality: 1 and "1" are never equal, null only equals null.
func TestDiff_StrictScalarEquality(t *testing.T) {
	previous, _ := objdiff.ParseJSON([]byte(`{"v": 1}`))
	current, _ := objdiff.ParseJSON([]byte(`{"v": "1"}`))
	changes := objdiff.Diff(previous, current)
	require.Len(t, changes, 1)
	assert.Equal(t, patch.ObjectModify, changes[0].Type)

	previous, _ = objdiff.ParseJSON([]byte(`{"v": null}`))
	current, _ = objdiff.ParseJSON([]byte(`{"v": null}`))
	assert.Empty(t, objdiff.Diff(previous, current))
}

// Property 3: applying the emitted diff to previous reproduces current.
func TestDiff_InversionProperty(t *testing.T) {
	cases := []struct {
		previous string
		current  string
	}{
		{`{"a": 1, "b": {"c": 2}, "d": [1, 2, 3]}`, `{"a": 2, "b": {"c": 2, "e": 4}, "d": [1, 5]}`},
		{`{"subapp": "v1.1.0"}`, `{"subapp": "v1.2.0"}`},
		{`{}`, `{"new": true}`},
	}

	for _, tc := range cases {
		previous, err := objdiff.ParseJSON([]byte(tc.previous))
		require.NoError(t, err)
		current, err := objdiff.ParseJSON([]byte(tc.current))
		require.NoError(t, err)

		changes := objdiff.Diff(previous, current)
		rebuilt := objdiff.Apply(previous, changes)

		if diff := cmp.Diff(current, rebuilt); diff != "" {
			t.Errorf("inversion mismatch (-current +rebuilt):\n%s", diff)
		}
	}
}

func TestParseJSON5_NormalizesToStrictJSON(t *testing.T) {
	tree, err := objdiff.ParseJSON5([]byte("{ // comment\n  subapp: 'v1.1.0',\n}"))
	require.NoError(t, err)
	m, ok := tree.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "v1.1.0", m["subapp"])
}

func TestParseYAML_UsesStringKeyedMaps(t *testing.T) {
	tree, err := objdiff.ParseYAML([]byte("coreapp: v1.0.0\nnested:\n  a: 1\n"))
	require.NoError(t, err)
	m, ok := tree.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "v1.0.0", m["coreapp"])
}

// S3: a TOML first-line change.
func TestParseTOML_FirstLineChange(t *testing.T) {
	previous, err := objdiff.ParseTOML([]byte("coreapp = \"v1.0.0\"\nsubapp = \"v1.1.0\"\n"))
	require.NoError(t, err)
	current, err := objdiff.ParseTOML([]byte("coreapp = \"v1.0.1\"\nsubapp = \"v1.1.0\"\n"))
	require.NoError(t, err)

	changes := objdiff.Diff(previous, current)
	require.Len(t, changes, 1)
	assert.Equal(t, []any{"coreapp"}, changes[0].Path)
}

func TestParserForPath(t *testing.T) {
	for _, path := range []string{"config.json", "config.json5", "config.yaml", "config.yml", "config.toml"} {
		_, ok := objdiff.ParserForPath(path)
		assert.True(t, ok, path)
	}
	_, ok := objdiff.ParserForPath("README.md")
	assert.False(t, ok)
}
