// Package bridge owns the fixed JSON Schema the host's getInput()
// envelope is validated against before a guest program is allowed to
// see it (§4.M). The schema is a Go literal, not a loaded file, since
// the envelope shape is pinned by §3/§6 and never varies per-invocation.
package bridge

import (
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/fensak-dev/approval-engine/internal/enginerr"
)

const envelopeSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["patches", "metadata"],
  "properties": {
    "patches": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["path", "op", "additions", "deletions", "diff"],
        "properties": {
          "path": {"type": "string"},
          "op": {"type": "integer"},
          "additions": {"type": "integer"},
          "deletions": {"type": "integer"},
          "diff": {"type": "array"},
          "objectDiff": {"type": ["object", "null"]}
        }
      }
    },
    "metadata": {
      "type": "object",
      "required": ["sourceBranch", "targetBranch", "linkedPRs"],
      "properties": {
        "sourceBranch": {"type": "string"},
        "targetBranch": {"type": "string"},
        "linkedPRs": {"type": "array"}
      }
    }
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchemaJSON))
		if err != nil {
			compileErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("envelope.json", doc); err != nil {
			compileErr = err
			return
		}
		compiled, compileErr = c.Compile("envelope.json")
	})
	return compiled, compileErr
}

// ValidateEnvelope checks that instance (a generic map[string]any /
// []any tree, the same shape encoding/json.Unmarshal produces when
// decoding into `any`) matches the {patches, metadata} envelope shape.
// A mismatch here means the host itself produced a malformed envelope —
// never the guest's fault, so callers should surface EngineInternalError.
func ValidateEnvelope(instance any) error {
	sch, err := schema()
	if err != nil {
		return enginerr.Wrap(enginerr.EngineInternalError, "compiling bridge envelope schema", err)
	}
	if err := sch.Validate(instance); err != nil {
		return enginerr.Wrap(enginerr.EngineInternalError, "host produced malformed bridge envelope", err)
	}
	return nil
}
