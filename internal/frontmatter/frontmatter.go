// Package frontmatter resolves the `fensak.linked` cross-PR references
// declared in a structured header block at the top of a PR description
// (§4.G), the same leading-`---`-delimited convention Jekyll/Hugo use
// for page front matter.
package frontmatter

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fensak-dev/approval-engine/internal/enginerr"
)

// LinkedPRRef is one entry parsed out of `fensak.linked`, before the
// caller resolves it against a forge to learn isMerged/isClosed.
type LinkedPRRef struct {
	PrNum int    `yaml:"prNum"`
	Repo  string `yaml:"repo"`
}

type fensakBlock struct {
	Linked []LinkedPRRef `yaml:"linked"`
}

type frontMatterDoc struct {
	Fensak *fensakBlock `yaml:"fensak"`
}

const delimiter = "---"

// ExtractLinkedPRRefs parses the leading front-matter block out of a PR
// description, if any, and returns the entries under `fensak.linked`.
//
// No front matter, or front matter without a `fensak` key, returns an
// empty (never nil) slice and no error. Front matter with `fensak` but
// without `linked` fails with MalformedFrontMatter.
func ExtractLinkedPRRefs(description string) ([]LinkedPRRef, error) {
	block, ok := splitFrontMatter(description)
	if !ok {
		return []LinkedPRRef{}, nil
	}

	var doc frontMatterDoc
	if err := yaml.Unmarshal([]byte(block), &doc); err != nil {
		return nil, enginerr.Wrap(enginerr.MalformedFrontMatter, "parsing front-matter block", err)
	}
	if doc.Fensak == nil {
		return []LinkedPRRef{}, nil
	}
	if doc.Fensak.Linked == nil {
		return nil, enginerr.New(enginerr.MalformedFrontMatter, "fensak block present without a linked key")
	}
	return doc.Fensak.Linked, nil
}

// splitFrontMatter locates the leading `---`-delimited block, mirroring
// the line-scan idiom the unified-diff parser uses to find hunk
// boundaries: a state flag set by the opening delimiter, cleared by the
// first matching delimiter that follows.
func splitFrontMatter(description string) (string, bool) {
	lines := strings.Split(description, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != delimiter {
		return "", false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delimiter {
			return strings.Join(lines[1:i], "\n"), true
		}
	}
	return "", false
}
