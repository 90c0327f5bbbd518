// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package depval implements dependency-validation handles: a handle
// refers to a set of watched files plus a monotonic validation index
// that strictly increases whenever a change is observed on any file in
// the handle's transitive closure.
package depval

import (
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Handle is a reference to a dependency-validation state.
// The zero Handle is valid and represents an empty depval: it watches
// no files and its Index is always 0.
type Handle struct {
	s *state
}

// state is the shared, reference-counted state behind one or more
// Handle values (Union produces a new state watching the combined
// file set; it does not alias the inputs' states).
type state struct {
	index atomic.Uint64
	files map[string]struct{}
}

// Empty reports whether h is the zero Handle (never constructed by
// New, Fresh, or Union). A Handle backed by a real state but watching
// no files (such as one returned by Fresh) is NOT considered empty by
// this method; New with no arguments returns the zero Handle.
func (h Handle) Empty() bool {
	return h.s == nil
}

// Index returns the current validation index. It starts at 0 and is
// strictly increased by svc whenever a watched file changes.
func (h Handle) Index() uint64 {
	if h.s == nil {
		return 0
	}
	return h.s.index.Load()
}

// SimulateChange bumps h's validation index without any corresponding
// file-system event, for tests that need to force invalidation
// deterministically. It does nothing else.
func (h Handle) SimulateChange() {
	if h.s != nil {
		h.s.index.Add(1)
	}
}

// Files returns the set of paths watched by h, sorted is not
// guaranteed; callers that need a stable order should sort the result.
func (h Handle) Files() []string {
	if h.s == nil {
		return nil
	}
	out := make([]string, 0, len(h.s.files))
	for f := range h.s.files {
		out = append(out, f)
	}
	return out
}

// Fresh allocates a new, non-empty Handle that watches no files. Its
// Index is always 0 unless bumped by SimulateChange. This exists for
// callers (e.g. future.SetInvalidAsset) that must synthesize a
// non-empty depval when none was supplied, per the invariant that an
// Invalid asset's pending depval is never the zero Handle.
func Fresh() Handle {
	return Handle{s: &state{files: make(map[string]struct{})}}
}

// New creates a Handle watching the given files. With no files, the
// returned Handle is empty and its Index is always 0.
func New(files ...string) (Handle, error) {
	if len(files) == 0 {
		return Handle{}, nil
	}
	st := &state{files: make(map[string]struct{}, len(files))}
	for _, f := range files {
		st.files[f] = struct{}{}
	}
	if err := defaultService().watch(st, files); err != nil {
		return Handle{}, err
	}
	return Handle{st}, nil
}

// Union returns a new Handle D such that any change to a file watched
// by a or b increments D's index. D does not alias a's or b's state;
// its index starts at 0 independently of theirs.
func Union(a, b Handle) (Handle, error) {
	files := make(map[string]struct{})
	for _, f := range a.Files() {
		files[f] = struct{}{}
	}
	for _, f := range b.Files() {
		files[f] = struct{}{}
	}
	if len(files) == 0 {
		return Handle{}, nil
	}
	st := &state{files: files}
	fl := make([]string, 0, len(files))
	for f := range files {
		fl = append(fl, f)
	}
	if err := defaultService().watch(st, fl); err != nil {
		return Handle{}, err
	}
	return Handle{st}, nil
}

// service multiplexes a single fsnotify.Watcher across every depval
// state that is watching a given path.
type service struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	watching map[string][]*state
}

var (
	svcOnce sync.Once
	svc     *service
)

func defaultService() *service {
	svcOnce.Do(func() {
		svc = &service{watching: make(map[string][]*state)}
	})
	return svc
}

// watch registers st as interested in each of files, lazily starting
// the underlying fsnotify.Watcher and its dispatch goroutine on first
// use. A file that does not yet exist on disk is still registered:
// fsnotify reports an error for missing paths, which watch tolerates
// (the depval simply never observes a change for that path until it
// is created and re-added — acceptable for this core, whose callers
// re-resolve dependencies on every compile miss).
func (sv *service) watch(st *state, files []string) error {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if sv.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		sv.watcher = w
		go sv.dispatch()
	}
	for _, f := range files {
		sv.watching[f] = append(sv.watching[f], st)
		// Best effort: a missing file is not a construction error.
		_ = sv.watcher.Add(f)
	}
	return nil
}

// dispatch is the single goroutine draining the fsnotify event
// channel for the lifetime of the process.
func (sv *service) dispatch() {
	for {
		sv.mu.Lock()
		w := sv.watcher
		sv.mu.Unlock()
		if w == nil {
			return
		}
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			sv.bump(ev.Name)
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}

// bump increments the index of every depval watching path.
func (sv *service) bump(path string) {
	sv.mu.Lock()
	states := append([]*state(nil), sv.watching[path]...)
	sv.mu.Unlock()
	for _, st := range states {
		st.index.Add(1)
	}
}
