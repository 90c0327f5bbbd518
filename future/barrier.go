// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package future

import (
	"sync"

	"github.com/gviegas/forge/internal/bitm"
)

// Barrier is the frame-barrier registry: a single synchronization
// point, invoked once per frame by the host via Publish, at which
// every Future with pending work publishes its back buffer to its
// front buffer.
//
// This replaces a global mutable registry with an explicit service:
// the embedding host (forge.Core) owns one Barrier and threads it by
// reference into every Future it constructs.
type Barrier struct {
	mu        sync.Mutex
	bm        bitm.Bitm[uint32]
	callbacks []func()
}

// NewBarrier creates an empty Barrier.
func NewBarrier() *Barrier { return &Barrier{} }

// register allocates a stable slot for cb and returns its id. The
// slot remains allocated (and cb is invoked on every subsequent
// Publish) until deregister is called with the same id.
func (b *Barrier) register(cb func()) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, ok := b.bm.Search()
	if !ok {
		idx = b.bm.Grow(1)
		for len(b.callbacks) < b.bm.Len() {
			b.callbacks = append(b.callbacks, nil)
		}
	}
	b.bm.Set(idx)
	b.callbacks[idx] = cb
	return idx
}

// deregister releases a previously registered slot. It is a no-op for
// an id that holds no callback (already deregistered or never
// registered): it is called from Future destruction paths and must
// never fail.
func (b *Barrier) deregister(id int) {
	if id < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if id >= len(b.callbacks) || b.callbacks[id] == nil {
		return
	}
	b.callbacks[id] = nil
	b.bm.Unset(id)
}

// Publish invokes every currently registered callback once. Relative
// order across callbacks within one Publish call is unspecified. A
// callback observed here may itself deregister (when
// its future resolves) or may leave its slot registered (when more
// work remains for the next Publish).
func (b *Barrier) Publish() {
	b.mu.Lock()
	cbs := make([]func(), 0, len(b.callbacks))
	for _, cb := range b.callbacks {
		if cb != nil {
			cbs = append(cbs, cb)
		}
	}
	b.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}
