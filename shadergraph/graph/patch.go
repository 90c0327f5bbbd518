// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package graph

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// PatchEntry is one patch binding: a name bound to an archive
// reference, optionally overriding what it implements and optionally
// carrying nested parameter bindings (each itself a PatchEntry, per
// the "<name>=~ <archive-ref>" syntax with nested "<param>=~ <ref>"
// bindings and an "Implements=" override).
type PatchEntry struct {
	Name       string
	ArchiveRef string
	Implements string
	Params     []PatchEntry
}

// ParsePatchCollection is a small hand-written recursive-descent
// reader for the patch-collection text format: no third-party config
// parser in the example pack understands this bespoke "=~" syntax (see
// DESIGN.md), so this is necessarily a purpose-built reader rather
// than a reused library, operating purely on leading-whitespace depth.
//
// Grammar (indentation-significant, tabs count as one level):
//
//	entry      := name "=~" ws archive-ref
//	implements := "Implements=" value
//	line       := entry | implements
//	block      := line (nested-line)*   ; nested-line indented one level deeper
func ParsePatchCollection(data []byte) ([]PatchEntry, error) {
	lines, err := tokenizeLines(data)
	if err != nil {
		return nil, err
	}
	entries, rest, err := parseBlock(lines, 0, nil)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("graph: patch collection: unconsumed input at %q", rest[0].text)
	}
	return entries, nil
}

type patchLine struct {
	depth int
	text  string
}

func tokenizeLines(data []byte) ([]patchLine, error) {
	var out []patchLine
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		raw := sc.Text()
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		depth := 0
		for _, r := range raw {
			if r == ' ' || r == '\t' {
				depth++
			} else {
				break
			}
		}
		out = append(out, patchLine{depth: depth, text: trimmed})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// parseBlock consumes every line at exactly minDepth (the first line
// in the slice sets the block's depth), plus their nested children,
// and returns the unconsumed remainder. An "Implements=" line in the
// block sets owner's Implements, owner being the entry the block is
// nested under (nil at the top level, where such a line is an error).
func parseBlock(lines []patchLine, minDepth int, owner *PatchEntry) ([]PatchEntry, []patchLine, error) {
	if len(lines) == 0 {
		return nil, nil, nil
	}
	depth := lines[0].depth
	if depth < minDepth {
		return nil, lines, nil
	}
	var entries []PatchEntry
	for len(lines) > 0 && lines[0].depth == depth {
		line := lines[0]
		rest := lines[1:]

		if _, value, ok := splitImplements(line.text); ok {
			if owner == nil {
				return nil, nil, fmt.Errorf("graph: patch collection: Implements= with no enclosing entry")
			}
			owner.Implements = value
			lines = rest
			continue
		}

		name, ref, err := splitBinding(line.text)
		if err != nil {
			return nil, nil, err
		}
		entry := PatchEntry{Name: name, ArchiveRef: ref}

		children, remainder, err := parseBlock(rest, depth+1, &entry)
		if err != nil {
			return nil, nil, err
		}
		entry.Params = children
		entries = append(entries, entry)
		lines = remainder
	}
	return entries, lines, nil
}

func splitImplements(s string) (name, value string, ok bool) {
	const prefix = "Implements="
	if !strings.HasPrefix(s, prefix) {
		return "", "", false
	}
	return "Implements", strings.TrimSpace(s[len(prefix):]), true
}

func splitBinding(s string) (name, archiveRef string, err error) {
	idx := strings.Index(s, "=~")
	if idx < 0 {
		return "", "", fmt.Errorf("graph: patch collection: malformed entry: %q", s)
	}
	name = strings.TrimSpace(s[:idx])
	archiveRef = strings.TrimSpace(s[idx+2:])
	if name == "" || archiveRef == "" {
		return "", "", fmt.Errorf("graph: patch collection: malformed entry: %q", s)
	}
	return name, archiveRef, nil
}
