// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package mount implements a prioritized, path-hashed virtual
// filesystem tree: a set of named mounts, each backed by an afero.Fs,
// resolved in priority order against a logical path. Enumeration
// tolerates concurrent mount/unmount by reporting ErrInvalidated
// rather than silently skipping or duplicating candidates.
package mount

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// ID identifies a single mount, returned by Tree.Mount and consumed
// by Tree.Unmount and by "name:/" fully-qualified lookups.
type ID int64

// Entry is one mounted filesystem, as exposed for inspection (tests,
// diagnostics). The tree itself keeps these ordered highest-priority
// first: index 0 is tried before index 1, and so on.
type Entry struct {
	PathHash            uint64
	Depth               int
	FS                  afero.Fs
	ID                  ID
	MountPointSections  []string
}

// Candidate is one resolved (filesystem, path) pair yielded by a
// lookup Iterator, in priority order.
type Candidate struct {
	FS         afero.Fs
	Path       string
	MountPoint string
	MountID    ID
}

// ErrInvalidated is returned by Iterator.Next when the mount list
// changed since the lookup began; the caller should discard the
// iterator and start a new Lookup.
var ErrInvalidated = errors.New("mount: lookup invalidated by concurrent mount/unmount")

// errNoMore is a private sentinel distinguishing "no more candidates"
// from real errors; Next surfaces it as (Candidate{}, false, nil).
var errNoMore = errors.New("mount: no more candidates")

// Tree is a prioritized mount list. The zero Tree is not usable; use
// New. A Tree is safe for concurrent use.
type Tree struct {
	mu        sync.Mutex
	mounts    []Entry
	changeID  atomic.Int64
	nextID    atomic.Int64
	defaultFS afero.Fs
}

// New creates an empty Tree.
func New() *Tree {
	t := &Tree{}
	t.changeID.Store(1)
	return t
}

// SetDefault sets the filesystem used for absolute/fully-qualified
// lookups that don't name an explicit mount.
func (t *Tree) SetDefault(fs afero.Fs) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultFS = fs
}

// Mount adds fs at mountPoint with the lowest priority among current
// mounts (mounts are tried in the order they were added; the first
// mount added has the highest priority). It returns an ID usable with
// Unmount and with "name:/" fully-qualified lookups.
func (t *Tree) Mount(mountPoint string, fs afero.Fs) ID {
	sections := normalizeMountPoint(mountPoint)
	hash := hashSections(sections)

	t.mu.Lock()
	defer t.mu.Unlock()
	id := ID(t.nextID.Add(1))
	t.mounts = append(t.mounts, Entry{
		PathHash:           hash,
		Depth:              len(sections),
		FS:                 fs,
		ID:                 id,
		MountPointSections: sections,
	})
	t.changeID.Add(1)
	return id
}

// Unmount removes the mount with the given ID, if present. It reports
// whether a mount was removed.
func (t *Tree) Unmount(id ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.mounts {
		if t.mounts[i].ID == id {
			t.mounts = append(t.mounts[:i], t.mounts[i+1:]...)
			t.changeID.Add(1)
			return true
		}
	}
	return false
}

// Mounts returns a snapshot of the current mount list, in priority
// order.
func (t *Tree) Mounts() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.mounts))
	copy(out, t.mounts)
	return out
}

// rootSeed is an arbitrary fixed seed folded into the first path
// segment's hash, so that a one-segment mount point and a one-segment
// path produce comparable hash chains.
const rootSeed uint64 = 0xcbf29ce484222325

// hashSegment folds seg into the running hash prev.
func hashSegment(prev uint64, seg string) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], prev)
	d := xxhash.New()
	d.Write(buf[:])
	d.Write([]byte(seg))
	return d.Sum64()
}

// hashSections computes the rolling hash of every section in order.
func hashSections(sections []string) uint64 {
	h := rootSeed
	for _, s := range sections {
		h = hashSegment(h, s)
	}
	return h
}

// Lookup begins resolving path against the tree's mounts. Candidates
// are produced lazily, in priority order, by repeated calls to
// Iterator.Next; the caller may act on a candidate (e.g. attempt to
// open a file) between calls without holding any lock.
func (t *Tree) Lookup(path string) *Iterator {
	if path == "" {
		return &Iterator{done: true}
	}
	p := parsePath(path)
	it := &Iterator{tree: t, parsed: p}
	if p.kind == kindNormal {
		it.snapshot = t.changeID.Load()
		it.cachedHashes = make([]uint64, len(p.segments))
	}
	return it
}

// Iterator yields mount candidates for one Lookup call.
type Iterator struct {
	tree   *Tree
	parsed parsedPath

	// Normal-mode state.
	snapshot      int64
	nextIdx       int
	cachedHashes  []uint64
	nextHashBuilt int

	done bool
}

// Next returns the next candidate in priority order. ok is false once
// candidates are exhausted (err is nil in that case). If the mount
// list changed since Lookup was called, err is ErrInvalidated and the
// iterator must not be reused.
func (it *Iterator) Next() (cand Candidate, ok bool, err error) {
	if it.done {
		return Candidate{}, false, nil
	}
	if it.parsed.kind == kindFullyQualified {
		it.done = true
		fs, mountPoint, id, found := it.tree.resolveExplicit(it.parsed)
		if !found {
			return Candidate{}, false, nil
		}
		return Candidate{FS: fs, Path: it.parsed.remainder, MountPoint: mountPoint, MountID: id}, true, nil
	}

	for {
		it.tree.mu.Lock()
		if it.tree.changeID.Load() != it.snapshot {
			it.tree.mu.Unlock()
			it.done = true
			return Candidate{}, false, ErrInvalidated
		}
		if it.nextIdx >= len(it.tree.mounts) {
			it.tree.mu.Unlock()
			it.done = true
			return Candidate{}, false, nil
		}
		m := it.tree.mounts[it.nextIdx]
		it.nextIdx++
		it.tree.mu.Unlock()

		if m.Depth == 0 {
			return Candidate{
				FS:         m.FS,
				Path:       joinSegments(it.parsed.segments),
				MountPoint: joinSegments(m.MountPointSections),
				MountID:    m.ID,
			}, true, nil
		}
		if m.Depth >= len(it.parsed.segments) {
			continue
		}
		for d := it.nextHashBuilt; d < m.Depth; d++ {
			prev := rootSeed
			if d > 0 {
				prev = it.cachedHashes[d-1]
			}
			it.cachedHashes[d] = hashSegment(prev, it.parsed.segments[d])
		}
		if m.Depth > it.nextHashBuilt {
			it.nextHashBuilt = m.Depth
		}
		if it.cachedHashes[m.Depth-1] == m.PathHash {
			return Candidate{
				FS:         m.FS,
				Path:       joinSegments(it.parsed.segments[m.Depth:]),
				MountPoint: joinSegments(m.MountPointSections),
				MountID:    m.ID,
			}, true, nil
		}
	}
}

// resolveExplicit resolves the filesystem for a fully-qualified
// lookup: an explicit "name:/" mount ID, or the default mount.
func (t *Tree) resolveExplicit(p parsedPath) (fs afero.Fs, mountPoint string, id ID, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !p.hasExplicit {
		if t.defaultFS == nil {
			return nil, "", 0, false
		}
		return t.defaultFS, "", 0, true
	}
	for _, m := range t.mounts {
		if m.ID == ID(p.explicitID) {
			return m.FS, joinSegments(m.MountPointSections), m.ID, true
		}
	}
	return nil, "", 0, false
}
