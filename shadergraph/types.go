// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package shadergraph implements the shader-graph instantiator (the
// work-stack expansion of a tree of InstantiationRequests into an
// InstantiatedShader) and, in compile.go, the patch-collection
// compiler built on top of it plus the descriptor-set linker in
// shadergraph/desclink.
package shadergraph

import (
	"github.com/gviegas/forge/depval"
	"github.com/gviegas/forge/gpu"
	"github.com/gviegas/forge/shadergraph/graph"
)

// Binding is one entry of an InstantiationRequest's parameter
// bindings. The data model describes parameter_bindings as a
// "map<name, InstantiationRequest>", but fingerprints must be
// order-sensitive over bindings: an ordered slice, not a Go map, is
// the faithful representation of that requirement.
type Binding struct {
	Name    string
	Request *InstantiationRequest
}

// InstantiationRequest is one node of the instantiation tree handed
// to Instantiate.
type InstantiationRequest struct {
	ArchiveName string

	// Name is the caller-assigned identifier for this request (the
	// patch-collection binding name it was compiled from, e.g.
	// "main"). Root requests use it to name their generated entry
	// point ("<Name>_<hash>"); when empty, the entry point falls back
	// to the referenced graph's own signature name (or file base name
	// for a raw shader file).
	Name string

	ParameterBindings     []Binding
	CurriedParams         []string
	ImplementsArchiveName string

	// CustomProvider overrides the default Provider passed to
	// Instantiate for this request (and is NOT folded into the
	// request's fingerprint: two requests differing only in which
	// Provider resolves them are the same request).
	CustomProvider graph.Provider `hash:"ignore"`

	// UseScaffold additionally emits a scaffold function whose
	// signature carries curried parameters named
	// curried_<binding>_<param>.
	UseScaffold bool
}

// EntryPoint is one root entry registered during instantiation.
type EntryPoint struct {
	Name                string
	Signature           graph.Signature
	ImplementsName      string
	ImplementsSignature graph.Signature
}

// InstantiatedShader is the output of Instantiate: generated source
// fragments, their entry points, the linked descriptor set, selector
// relevance, and dependency bookkeeping.
type InstantiatedShader struct {
	SourceFragments     []string
	EntryPoints         []EntryPoint
	DescriptorSet       *gpu.PipelineLayout
	SelectorRelevance   map[string]string // identifier -> the raw defined(...) condition it appeared in
	RawShaderIncludes   []string          // deduplicated, first-seen order
	InstantiationPrefix []string          // deduplicated, first-seen order
	DepVals             []depval.Handle
	DependentFileStates []graph.FileState
}

// CompiledShaderPatchCollection is the cached, immutable artifact
// produced by Compile.
type CompiledShaderPatchCollection struct {
	GUID               uint64
	Interface          PatchCollectionInterface
	Source             *InstantiatedShader
	SavedInstantiation []graph.PatchEntry
	DepVal             depval.Handle
	Dependencies       []graph.FileState
}

// PatchCollectionInterface enumerates what a compiled patch collection
// exposes to callers: its patches, the linked material descriptor
// set, per-patch filtering rules, an optional preconfiguration file,
// and up to 4 per-stage override shader names.
type PatchCollectionInterface struct {
	Patches               []string
	MaterialDescriptorSet *gpu.PipelineLayout
	FilteringRules        map[string][]string // patch name -> filtering rule list
	Preconfiguration      string
	OverrideShaders       [4]string
}
