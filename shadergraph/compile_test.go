// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shadergraph

import (
	"fmt"
	"strings"
	"testing"

	"github.com/gviegas/forge/depval"
	"github.com/gviegas/forge/shadergraph/graph"
)

// stubProvider resolves a fixed map of archive references, so tests
// exercise Compile/Instantiate without touching the filesystem.
type stubProvider map[string]graph.Loaded

func (p stubProvider) Load(ref string) (graph.Loaded, error) {
	l, ok := p[ref]
	if !ok {
		return graph.Loaded{}, fmt.Errorf("stubProvider: no entry for %q", ref)
	}
	return l, nil
}

func deferredPassProvider(t *testing.T) stubProvider {
	t.Helper()
	dvMain, err := depval.New("deferred_pass_main.graph")
	if err != nil {
		t.Fatalf("depval.New: unexpected error: %v", err)
	}
	dvPerPixel, err := depval.New("default_perpixel.graph")
	if err != nil {
		t.Fatalf("depval.New: unexpected error: %v", err)
	}
	return stubProvider{
		"graph::deferred_pass_main": {
			Graph: graph.Graph{
				Signature: graph.Signature{Name: "deferred_pass_main"},
				Edges: []graph.Edge{
					{Condition: "defined(USE_IBL)"},
					{Condition: "defined(USE_SHADOWS) && defined(USE_IBL)"},
				},
			},
			DepVal:    dvMain,
			FileState: graph.FileState{Path: "deferred_pass_main.graph"},
		},
		"graph::Default_PerPixel": {
			Graph: graph.Graph{
				Signature: graph.Signature{
					Name: "Default_PerPixel",
					Params: []graph.Param{
						{Name: "normal", Type: "float3", Direction: graph.In},
						{Name: "color", Type: "float4", Direction: graph.Out},
					},
				},
			},
			DepVal:    dvPerPixel,
			FileState: graph.FileState{Path: "default_perpixel.graph"},
		},
	}
}

func deferredPassEntries() []graph.PatchEntry {
	return []graph.PatchEntry{
		{
			Name:       "main",
			ArchiveRef: "graph::deferred_pass_main",
			Implements: "deferred_pass_main",
			Params: []graph.PatchEntry{
				{Name: "perPixel", ArchiveRef: "graph::Default_PerPixel"},
			},
		},
	}
}

// TestCompileNestedParameterBinding compiles one root patch
// implementing "deferred_pass_main" with a nested "perPixel" binding.
func TestCompileNestedParameterBinding(t *testing.T) {
	c := NewCompiler(deferredPassProvider(t), nil)
	out, err := c.Compile(deferredPassEntries())
	if err != nil {
		t.Fatalf("Compile: unexpected error: %v", err)
	}

	eps := out.Source.EntryPoints
	if len(eps) != 1 {
		t.Fatalf("EntryPoints: len\nhave %d\nwant 1 (%+v)", len(eps), eps)
	}
	if !strings.HasPrefix(eps[0].Name, "main_") {
		t.Fatalf("EntryPoints[0].Name:\nhave %q\nwant prefix %q", eps[0].Name, "main_")
	}
	if eps[0].ImplementsName != "deferred_pass_main" {
		t.Fatalf("EntryPoints[0].ImplementsName:\nhave %q\nwant %q", eps[0].ImplementsName, "deferred_pass_main")
	}

	for _, tok := range []string{"USE_IBL", "USE_SHADOWS"} {
		if _, ok := out.Source.SelectorRelevance[tok]; !ok {
			t.Fatalf("SelectorRelevance: missing token %q\nhave %+v", tok, out.Source.SelectorRelevance)
		}
	}
}

// TestCompileCachesByFingerprint asserts that compiling the same
// content twice returns the very same cached artifact (by GUID)
// rather than recomputing it.
func TestCompileCachesByFingerprint(t *testing.T) {
	c := NewCompiler(deferredPassProvider(t), nil)
	first, err := c.Compile(deferredPassEntries())
	if err != nil {
		t.Fatalf("Compile: unexpected error: %v", err)
	}
	second, err := c.Compile(deferredPassEntries())
	if err != nil {
		t.Fatalf("Compile: unexpected error: %v", err)
	}
	if first.GUID != second.GUID {
		t.Fatalf("GUID: repeated Compile produced a different artifact:\nhave %d and %d", first.GUID, second.GUID)
	}
}

// TestFingerprintIdenticalContentEqualRegardlessOfSource verifies
// that two independently-built entry slices with identical
// deserialized content fingerprint equal, whether one came from
// ParsePatchCollection with extra whitespace/comments or was built
// directly as a literal.
func TestFingerprintIdenticalContentEqualRegardlessOfSource(t *testing.T) {
	fromLiteral := deferredPassEntries()

	src := []byte(`
# a leading comment, arbitrary whitespace below
main=~   graph::deferred_pass_main
    perPixel=~ graph::Default_PerPixel
    Implements=deferred_pass_main
`)
	fromText, err := graph.ParsePatchCollection(src)
	if err != nil {
		t.Fatalf("ParsePatchCollection: unexpected error: %v", err)
	}

	a := PatchCollectionFingerprint(fromLiteral)
	b := PatchCollectionFingerprint(fromText)
	if a != b {
		t.Fatalf("PatchCollectionFingerprint:\nhave %x and %x\nwant equal", a, b)
	}
}

// TestUnionDepValFileChangeIncreasesIndex verifies that a file
// change strictly increases the compiled collection's dep-val index,
// so a cache consumer can detect staleness.
func TestUnionDepValFileChangeIncreasesIndex(t *testing.T) {
	c := NewCompiler(deferredPassProvider(t), nil)
	out, err := c.Compile(deferredPassEntries())
	if err != nil {
		t.Fatalf("Compile: unexpected error: %v", err)
	}

	before := out.DepVal.Index()
	out.DepVal.SimulateChange()
	after := out.DepVal.Index()
	if after <= before {
		t.Fatalf("DepVal.Index after change:\nhave %d\nwant > %d", after, before)
	}
}
