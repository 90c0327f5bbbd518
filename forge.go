// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package forge is the root facade threading together the
// dependency-validation, mounting, future/barrier, and shader-graph
// compilation substrates into a single embeddable core, constructed
// from its external collaborators plus an Options value exactly like
// a renderer is built from a device handle and a Config.
package forge

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/gviegas/forge/depval"
	"github.com/gviegas/forge/future"
	"github.com/gviegas/forge/gpu"
	"github.com/gviegas/forge/mount"
	"github.com/gviegas/forge/shadergraph"
	"github.com/gviegas/forge/shadergraph/graph"
)

// NewProductionLogger builds the logr.Logger backend embedding hosts
// are expected to pass via Options.Logger outside of tests: a
// zap.NewProduction logger wrapped with zapr, the same logr-over-zap
// stack a Kubernetes-style reconciler threads through its controllers.
func NewProductionLogger() (logr.Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return logr.Logger{}, fmt.Errorf("forge: building production logger: %w", err)
	}
	return zapr.NewLogger(z), nil
}

// Options configures a Core. The embedding host supplies these three
// external collaborators (logger, root filesystem, target pipeline
// layout); everything else the core owns outright.
type Options struct {
	// Logger receives structured diagnostics (mount changes, shader
	// compilation misses, dependency invalidation). Defaults to
	// logr.Discard() when unset.
	Logger logr.Logger

	// RootFS is mounted at the tree's root before any other mount, so
	// it has the highest priority: mounts added later via
	// Core.Tree().Mount are tried after it. May be nil, leaving the
	// tree with no default mount.
	RootFS afero.Fs

	// FixedLayout is the fixed descriptor-set layout every compiled
	// shader patch collection links against. May be
	// nil, in which case Compile leaves the captured layout unlinked.
	FixedLayout *gpu.PipelineLayout
}

// Core is the embeddable asset/shader-graph instantiation core: one
// MountingTree, one frame Barrier, and one shader-patch Compiler,
// sharing a single logger.
type Core struct {
	logger   logr.Logger
	tree     *mount.Tree
	barrier  *future.Barrier
	compiler *shadergraph.Compiler
}

// New constructs a Core from opts.
func New(opts Options) *Core {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	tree := mount.New()
	if opts.RootFS != nil {
		tree.SetDefault(opts.RootFS)
		tree.Mount("", opts.RootFS)
	}

	provider := newTreeProvider(tree, logger)
	compiler := shadergraph.NewCompiler(provider, opts.FixedLayout)

	return &Core{
		logger:   logger,
		tree:     tree,
		barrier:  future.NewBarrier(),
		compiler: compiler,
	}
}

// Logger returns the core's logger.
func (c *Core) Logger() logr.Logger { return c.logger }

// Tree returns the core's mounting tree, for registering additional
// mounts beyond the one supplied at construction.
func (c *Core) Tree() *mount.Tree { return c.tree }

// Barrier returns the core's frame barrier. The host calls
// Barrier.Publish once per frame to drive every Future with pending
// work forward.
func (c *Core) Barrier() *future.Barrier { return c.barrier }

// Compile compiles (or returns the cached artifact for) a patch
// collection.
func (c *Core) Compile(entries []graph.PatchEntry) (*shadergraph.CompiledShaderPatchCollection, error) {
	out, err := c.compiler.Compile(entries)
	if err != nil {
		c.logger.Error(err, "shader patch collection compile failed")
		return nil, err
	}
	return out, nil
}

// Invalidate evicts a previously compiled collection, forcing the
// next Compile call for the same content to recompute it.
func (c *Core) Invalidate(entries []graph.PatchEntry) {
	c.compiler.Invalidate(entries)
}

// treeProvider adapts a mount.Tree into a graph.Provider: an archive
// reference's path component is looked up in tree's highest-priority
// order, the first mount whose filesystem has the file wins, and the
// logger records a resolution failure before it is wrapped and
// returned: archive resolution is a pure function of tree's current
// mounts.
type treeProvider struct {
	tree   *mount.Tree
	logger logr.Logger
}

func newTreeProvider(tree *mount.Tree, logger logr.Logger) *treeProvider {
	return &treeProvider{tree: tree, logger: logger}
}

func (p *treeProvider) Load(archiveRef string) (graph.Loaded, error) {
	path := archivePath(archiveRef)
	it := p.tree.Lookup(path)
	for {
		cand, ok, err := it.Next()
		if err != nil {
			return graph.Loaded{}, fmt.Errorf("forge: looking up %q: %w", archiveRef, err)
		}
		if !ok {
			break
		}
		data, err := afero.ReadFile(cand.FS, cand.Path)
		if err != nil {
			continue
		}
		g, err := graph.ParseGraphText(data)
		if err != nil {
			return graph.Loaded{}, fmt.Errorf("forge: parsing %q: %w", archiveRef, err)
		}
		dv, err := depval.New(cand.Path)
		if err != nil {
			return graph.Loaded{}, err
		}
		return graph.Loaded{Graph: g, DepVal: dv, FileState: graph.FileState{Path: cand.Path}}, nil
	}
	err := fmt.Errorf("forge: %q not found in any mount", archiveRef)
	p.logger.Error(err, "archive reference resolution failed", "ref", archiveRef)
	return graph.Loaded{}, err
}

// archivePath strips the "graph::" namespace prefix every archive
// reference carries, mirroring shadergraph.isRawShaderFile's
// convention for distinguishing graph-syntax references from raw
// shader files.
func archivePath(archiveRef string) string {
	const prefix = "graph::"
	if len(archiveRef) > len(prefix) && archiveRef[:len(prefix)] == prefix {
		return archiveRef[len(prefix):] + ".graph"
	}
	return archiveRef
}
