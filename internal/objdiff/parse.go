// Package objdiff implements component C of the specification: parsing
// structured configuration files into a generic tree and producing the
// minimal set of ObjectChange entries between two such trees.
//
// Every supported format converges on the same generic shape before the
// diff algorithm runs: map[string]any for objects, []any for ordered
// sequences, and scalar leaves (nil, bool, string, and numbers as
// float64, int or int64 depending on the parser).
package objdiff

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/fensak-dev/approval-engine/internal/enginerr"
)

// Parser decodes raw file content into a generic tree.
type Parser func(content []byte) (any, error)

// ParserForPath returns the parser bound to a path's extension, and
// whether the path is recognized as structured configuration at all.
func ParserForPath(path string) (Parser, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON, true
	case ".json5":
		return ParseJSON5, true
	case ".yaml", ".yml":
		return ParseYAML, true
	case ".toml":
		return ParseTOML, true
	default:
		return nil, false
	}
}

// ParseJSON decodes strict JSON content.
func ParseJSON(content []byte) (any, error) {
	var tree any
	if err := json.Unmarshal(content, &tree); err != nil {
		return nil, enginerr.Wrap(enginerr.ParseFailure, "invalid json", err)
	}
	return tree, nil
}

// ParseJSON5 normalizes JSON5's looser grammar (comments, trailing
// commas, unquoted keys, single-quoted strings) into strict JSON via
// jsonrepair before decoding with encoding/json.
func ParseJSON5(content []byte) (any, error) {
	repaired, err := jsonrepair.JSONRepair(string(content))
	if err != nil {
		return nil, enginerr.Wrap(enginerr.ParseFailure, "invalid json5", err)
	}
	return ParseJSON([]byte(repaired))
}

// ParseYAML decodes YAML content into the generic tree shape.
func ParseYAML(content []byte) (any, error) {
	var tree any
	if err := yaml.Unmarshal(content, &tree); err != nil {
		return nil, enginerr.Wrap(enginerr.ParseFailure, "invalid yaml", err)
	}
	return normalizeYAML(tree), nil
}

// ParseTOML decodes TOML content into the generic tree shape.
func ParseTOML(content []byte) (any, error) {
	var tree map[string]any
	if err := toml.Unmarshal(content, &tree); err != nil {
		return nil, enginerr.Wrap(enginerr.ParseFailure, "invalid toml", err)
	}
	return tree, nil
}

// normalizeYAML rewrites map[string]interface{} subtrees recursively;
// yaml.v3 already keys maps by string when decoding into `any`, but
// nested sequences need the same treatment applied to their elements.
func normalizeYAML(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}
