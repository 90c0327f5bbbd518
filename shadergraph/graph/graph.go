// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package graph loads graph-syntax archive entries into the reduced
// {signature, graph, depval, file_state} shape the shader-graph
// instantiator consumes. A real shader-graph node editor/syntax
// parser is out of scope here; the text format read here is a small
// stand-in that still exercises every field the instantiator needs: a
// signature line, zero or more edge-condition lines (scanned for
// defined(X) tokens by the instantiator's selector-relevance pass),
// and zero or more dependency lines naming further archive entries to
// load.
package graph

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/gviegas/forge/depval"
)

// Direction is the data-flow direction of a Param.
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// Param is one parameter of a graph function's signature.
type Param struct {
	Name      string
	Type      string
	Direction Direction
}

// Signature describes a graph function's name and parameter list.
type Signature struct {
	Name   string
	Params []Param
}

// Edge carries a raw boolean condition expression (e.g. "defined(X)
// && defined(Y)") gating a connection inside the graph.
type Edge struct {
	Condition string
}

// Graph is the parsed body of one archive entry.
type Graph struct {
	Signature    Signature
	Edges        []Edge
	Dependencies []string // further "archive::name" references
	RawIncludes  []string // plain (non-graph) HLSL include files
}

// FileState names the concrete file a Graph was loaded from, for
// dependency bookkeeping independent of the depval index.
type FileState struct {
	Path string
}

// Loaded is the full result of resolving one archive reference.
type Loaded struct {
	Graph     Graph
	DepVal    depval.Handle
	FileState FileState
}

// Provider resolves an archive reference (e.g. "graph::Lighting" or a
// bare raw-shader filename) to its parsed contents. The instantiator
// depends only on this interface, never on a concrete file layout.
type Provider interface {
	Load(archiveRef string) (Loaded, error)
}

// ReaderFunc opens the raw bytes behind a resolved path. DefaultProvider
// is parameterized by one so it can sit on top of mount.Tree lookups
// without importing that package (keeping graph's dependency surface
// to parsing alone).
type ReaderFunc func(path string) ([]byte, string, error)

// DefaultProvider is the reference Provider: it resolves an archive
// reference to a path via Resolve, reads it via Read, computes a
// depval over the concrete path, and parses the bytes with
// ParseGraphText.
type DefaultProvider struct {
	// Resolve maps an archive reference ("graph::Name") to the
	// concrete path that should be read and watched.
	Resolve func(archiveRef string) (path string, err error)
	Read    ReaderFunc
}

func (p *DefaultProvider) Load(archiveRef string) (Loaded, error) {
	path, err := p.Resolve(archiveRef)
	if err != nil {
		return Loaded{}, fmt.Errorf("graph: resolving %q: %w", archiveRef, err)
	}
	data, canonicalPath, err := p.Read(path)
	if err != nil {
		return Loaded{}, fmt.Errorf("graph: reading %q: %w", path, err)
	}
	g, err := ParseGraphText(data)
	if err != nil {
		return Loaded{}, fmt.Errorf("graph: parsing %q: %w", path, err)
	}
	dv, err := depval.New(canonicalPath)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{Graph: g, DepVal: dv, FileState: FileState{Path: canonicalPath}}, nil
}

// ParseGraphText reads the reduced graph-syntax stand-in described in
// the package doc comment. Recognized line forms (leading/trailing
// whitespace ignored, blank lines and lines starting with "#"
// skipped):
//
//	signature: <name>(<dir> <type> <name>, ...)
//	edge: <condition text>
//	depends: <archive-ref>
//	include: <path>
func ParseGraphText(data []byte) (Graph, error) {
	var g Graph
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "signature:"):
			sig, err := parseSignature(strings.TrimSpace(line[len("signature:"):]))
			if err != nil {
				return Graph{}, err
			}
			g.Signature = sig
		case strings.HasPrefix(line, "edge:"):
			g.Edges = append(g.Edges, Edge{Condition: strings.TrimSpace(line[len("edge:"):])})
		case strings.HasPrefix(line, "depends:"):
			g.Dependencies = append(g.Dependencies, strings.TrimSpace(line[len("depends:"):]))
		case strings.HasPrefix(line, "include:"):
			g.RawIncludes = append(g.RawIncludes, strings.TrimSpace(line[len("include:"):]))
		default:
			return Graph{}, fmt.Errorf("graph: unrecognized line: %q", line)
		}
	}
	if err := sc.Err(); err != nil {
		return Graph{}, err
	}
	return g, nil
}

// parseSignature parses "<name>(<dir> <type> <name>, ...)".
func parseSignature(s string) (Signature, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return Signature{}, fmt.Errorf("graph: malformed signature: %q", s)
	}
	sig := Signature{Name: strings.TrimSpace(s[:open])}
	body := strings.TrimSpace(s[open+1 : len(s)-1])
	if body == "" {
		return sig, nil
	}
	for _, part := range strings.Split(body, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) != 3 {
			return Signature{}, fmt.Errorf("graph: malformed parameter: %q", part)
		}
		var dir Direction
		switch fields[0] {
		case "in":
			dir = In
		case "out":
			dir = Out
		default:
			return Signature{}, fmt.Errorf("graph: unknown direction %q", fields[0])
		}
		sig.Params = append(sig.Params, Param{Direction: dir, Type: fields[1], Name: fields[2]})
	}
	return sig, nil
}
