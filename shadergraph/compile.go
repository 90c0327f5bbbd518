// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shadergraph

import (
	"strings"
	"sync/atomic"

	"github.com/gviegas/forge/depval"
	"github.com/gviegas/forge/gpu"
	"github.com/gviegas/forge/shadergraph/cache"
	"github.com/gviegas/forge/shadergraph/graph"
)

// Compiler is keyed by patch-collection fingerprint; a cache hit
// returns the shared CompiledShaderPatchCollection handle, and a miss
// runs the instantiator and the descriptor-set linker, builds the
// collection's interface, and records the union of every dep-val it
// touched.
type Compiler struct {
	cache       *cache.Cache[*CompiledShaderPatchCollection]
	provider    graph.Provider
	fixedLayout *gpu.PipelineLayout
	nextGUID    atomic.Uint64
}

// NewCompiler creates a Compiler that resolves graph references
// through provider and links against fixedLayout (nil is valid and
// leaves the captured layout unlinked).
func NewCompiler(provider graph.Provider, fixedLayout *gpu.PipelineLayout) *Compiler {
	return &Compiler{
		cache:       cache.New[*CompiledShaderPatchCollection](),
		provider:    provider,
		fixedLayout: fixedLayout,
	}
}

// Compile returns the CompiledShaderPatchCollection for entries,
// computing it on a cache miss.
func (c *Compiler) Compile(entries []graph.PatchEntry) (*CompiledShaderPatchCollection, error) {
	fp := PatchCollectionFingerprint(entries)
	return c.cache.GetOrCompute(fp, func() (*CompiledShaderPatchCollection, error) {
		return c.compile(entries)
	})
}

// Invalidate evicts a previously compiled collection, forcing the
// next Compile call for the same content to recompute it.
func (c *Compiler) Invalidate(entries []graph.PatchEntry) {
	c.cache.Invalidate(PatchCollectionFingerprint(entries))
}

func (c *Compiler) compile(entries []graph.PatchEntry) (*CompiledShaderPatchCollection, error) {
	requests := buildRequests(entries)
	source, err := Instantiate(requests, c.provider, c.fixedLayout)
	if err != nil {
		return nil, err
	}

	dv, err := unionDepVals(source.DepVals)
	if err != nil {
		return nil, err
	}

	return &CompiledShaderPatchCollection{
		GUID:               c.nextGUID.Add(1),
		Interface:          buildInterface(entries, source),
		Source:             source,
		SavedInstantiation: entries,
		DepVal:             dv,
		Dependencies:       source.DependentFileStates,
	}, nil
}

// buildRequests converts a parsed patch collection into the root
// InstantiationRequest tree Instantiate expects: each top-level entry
// becomes a root request, and its nested params become ordered
// ParameterBindings.
func buildRequests(entries []graph.PatchEntry) []*InstantiationRequest {
	out := make([]*InstantiationRequest, len(entries))
	for i, e := range entries {
		out[i] = entryToRequest(e)
	}
	return out
}

func entryToRequest(e graph.PatchEntry) *InstantiationRequest {
	req := &InstantiationRequest{
		ArchiveName:           e.ArchiveRef,
		Name:                  e.Name,
		ImplementsArchiveName: e.Implements,
	}
	for _, p := range e.Params {
		req.ParameterBindings = append(req.ParameterBindings, Binding{Name: p.Name, Request: entryToRequest(p)})
	}
	return req
}

// overrideStageNames names the four per-stage override slots in
// PatchCollectionInterface.OverrideShaders, in stage order.
var overrideStageNames = [4]string{"OverrideVS", "OverrideGS", "OverridePS", "OverrideCS"}

const preconfigurationEntryName = "Preconfiguration"

// buildInterface enumerates top-level patches, collects per-patch
// filtering rules (the defined(...) conditions whose identifier
// mentions that patch's name — the only linkage the data model
// offers between a selector token and a patch), extracts override
// shader names per stage by a fixed top-level entry-name convention,
// and resolves an optional preconfiguration entry.
func buildInterface(entries []graph.PatchEntry, source *InstantiatedShader) PatchCollectionInterface {
	iface := PatchCollectionInterface{
		MaterialDescriptorSet: source.DescriptorSet,
		FilteringRules:        make(map[string][]string),
	}

	for _, e := range entries {
		switch e.Name {
		case overrideStageNames[0], overrideStageNames[1], overrideStageNames[2], overrideStageNames[3]:
			for i, n := range overrideStageNames {
				if e.Name == n {
					iface.OverrideShaders[i] = e.ArchiveRef
				}
			}
			continue
		case preconfigurationEntryName:
			iface.Preconfiguration = e.ArchiveRef
			continue
		}

		iface.Patches = append(iface.Patches, e.Name)
		for token, cond := range source.SelectorRelevance {
			if strings.Contains(token, e.Name) || strings.Contains(e.Name, token) {
				iface.FilteringRules[e.Name] = append(iface.FilteringRules[e.Name], cond)
			}
		}
	}
	return iface
}

func unionDepVals(vals []depval.Handle) (depval.Handle, error) {
	if len(vals) == 0 {
		return depval.Fresh(), nil
	}
	out := vals[0]
	for _, v := range vals[1:] {
		merged, err := depval.Union(out, v)
		if err != nil {
			return depval.Handle{}, err
		}
		out = merged
	}
	return out, nil
}
