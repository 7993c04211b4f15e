// Package diffparse parses unified-diff text into ordered Hunk sequences
// (component B of the specification). It is deliberately file-blind: the
// input may be a single file's hunk text or several files concatenated
// together, and everything outside a hunk body — "diff --git" lines,
// "index" lines, "---"/"+++" file headers — is silently skipped rather
// than interpreted, per the "only the hunk portion is interpreted" rule.
package diffparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fensak-dev/approval-engine/internal/enginerr"
	"github.com/fensak-dev/approval-engine/internal/patch"
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Parser parses unified-diff text into hunks. It carries no state; the
// zero value is ready to use.
type Parser struct{}

// NewParser creates a new unified-diff parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseHunks parses diffText into an ordered sequence of Hunk. An empty
// input yields an empty, non-nil result. Malformed hunk headers fail
// with InvalidPatch; unrecognized body-line prefixes are skipped.
func (p *Parser) ParseHunks(diffText string) ([]patch.Hunk, error) {
	hunks := make([]patch.Hunk, 0)
	if strings.TrimSpace(diffText) == "" {
		return hunks, nil
	}

	// A final newline terminates the last line; it does not open an
	// empty body line of its own.
	lines := strings.Split(strings.TrimSuffix(diffText, "\n"), "\n")

	var current *patch.Hunk
	for _, line := range lines {
		if strings.HasPrefix(line, "@@") {
			if current != nil {
				hunks = append(hunks, *current)
			}
			h, err := parseHunkHeader(line)
			if err != nil {
				return nil, err
			}
			current = h
			continue
		}

		if current == nil {
			// Outside any hunk body: file headers, index lines, and
			// blank separators between files are all ignored here.
			continue
		}

		classifyBodyLine(current, line)
	}

	if current != nil {
		hunks = append(hunks, *current)
	}

	return pairModified(hunks), nil
}

func parseHunkHeader(line string) (*patch.Hunk, error) {
	m := hunkHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return nil, enginerr.Newf(enginerr.InvalidPatch, "malformed hunk header: %q", line)
	}

	origStart, _ := strconv.Atoi(m[1])
	origLen := 1
	if m[2] != "" {
		origLen, _ = strconv.Atoi(m[2])
	}
	updStart, _ := strconv.Atoi(m[3])
	updLen := 1
	if m[4] != "" {
		updLen, _ = strconv.Atoi(m[4])
	}

	if origLen == 0 {
		origStart = 0
	}
	if updLen == 0 {
		updStart = 0
	}

	return &patch.Hunk{
		OriginalStart:  origStart,
		OriginalLength: origLen,
		UpdatedStart:   updStart,
		UpdatedLength:  updLen,
		DiffOperations: make([]patch.LineDiff, 0, origLen+updLen),
	}, nil
}

func classifyBodyLine(h *patch.Hunk, line string) {
	switch {
	case strings.HasPrefix(line, "+++"):
		return // file header, not a body line
	case strings.HasPrefix(line, "---"):
		return // file header, not a body line
	case strings.HasPrefix(line, "+"):
		h.DiffOperations = append(h.DiffOperations, patch.LineDiff{Op: patch.LineInsert, Text: line[1:]})
	case strings.HasPrefix(line, "-"):
		h.DiffOperations = append(h.DiffOperations, patch.LineDiff{Op: patch.LineDelete, Text: line[1:]})
	case strings.HasPrefix(line, " "):
		h.DiffOperations = append(h.DiffOperations, patch.LineDiff{Op: patch.LineUntouched, Text: line[1:]})
	case line == "":
		h.DiffOperations = append(h.DiffOperations, patch.LineDiff{Op: patch.LineUntouched, Text: ""})
	case strings.HasPrefix(line, "\\"):
		// "\ No newline at end of file" and similar — ignored.
		return
	default:
		// Unrecognized prefix: forward-compatibility skip.
		return
	}
}

// pairModified coalesces equal-length runs of consecutive Delete
// immediately followed by Insert into positional Modified entries.
// Pairing never crosses an Untouched boundary and surplus lines on
// either side of an unequal run stay as Delete/Insert.
func pairModified(hunks []patch.Hunk) []patch.Hunk {
	out := make([]patch.Hunk, len(hunks))
	for i, h := range hunks {
		out[i] = patch.Hunk{
			OriginalStart:  h.OriginalStart,
			OriginalLength: h.OriginalLength,
			UpdatedStart:   h.UpdatedStart,
			UpdatedLength:  h.UpdatedLength,
			DiffOperations: pairModifiedOps(h.DiffOperations),
		}
	}
	return out
}

func pairModifiedOps(ops []patch.LineDiff) []patch.LineDiff {
	result := make([]patch.LineDiff, 0, len(ops))

	i := 0
	for i < len(ops) {
		if ops[i].Op != patch.LineDelete {
			result = append(result, ops[i])
			i++
			continue
		}

		delStart := i
		for i < len(ops) && ops[i].Op == patch.LineDelete {
			i++
		}
		delRun := ops[delStart:i]

		insStart := i
		for i < len(ops) && ops[i].Op == patch.LineInsert {
			i++
		}
		insRun := ops[insStart:i]

		if len(delRun) == len(insRun) && len(delRun) > 0 {
			for k := range delRun {
				result = append(result, patch.LineDiff{
					Op:      patch.LineModified,
					Text:    delRun[k].Text,
					NewText: insRun[k].Text,
				})
			}
			continue
		}

		result = append(result, delRun...)
		result = append(result, insRun...)
	}

	return result
}
