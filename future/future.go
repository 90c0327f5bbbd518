// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package future

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gviegas/forge/depval"
)

// PollFunc is a progress-making callback for a Future[T]. It returns
// whether it should be called again (true) to make further progress,
// or an error to transition the future to Invalid.
//
// This replaces a std::function<bool(Future<T>&)> with an
// explicit callable value; the runner
// (StallWhilePending or a Barrier callback) takes exclusive ownership
// of it for the duration of one call, guaranteeing the "no two threads
// execute it concurrently for the same future" invariant.
type PollFunc[T any] func(f *Future[T]) (more bool, err error)

// Future is a polymorphic promise for a value of type T, carrying it
// through Pending -> Ready/Invalid with a back-buffer/front-buffer
// split so that producers can write freely while the future is
// Pending and readers never observe a torn value once it publishes.
type Future[T any] struct {
	mu    sync.Mutex
	state atomicState

	actualized       T
	actualizedDepVal depval.Handle
	actualizedLog    string

	pending       T
	pendingState  AssetState
	pendingDepVal depval.Handle
	pendingLog    string

	pollingFn PollFunc[T]

	initializer string
	barrier     *Barrier
	barrierID   int // -1 when not subscribed
}

// New creates a Future in the Pending/Pending state. barrier is the
// Barrier this future will subscribe to when it has pending work; it
// must be non-nil (construct one Barrier per frame-synchronized
// system and thread it through).
func New[T any](initializer string, barrier *Barrier) *Future[T] {
	return &Future[T]{initializer: initializer, barrier: barrier, barrierID: -1}
}

// Initializer returns the opaque diagnostic identifier supplied to
// New.
func (f *Future[T]) Initializer() string { return f.initializer }

// GetAssetState atomically reads the future's current state.
func (f *Future[T]) GetAssetState() AssetState { return f.state.load() }

// Actualize returns the ready value, or fails with *PendingAssetError
// / *InvalidAssetError. The Ready case is lock-free: state's Pending
// -> Ready transition is sequentially consistent with the write of
// actualized (Go's memory model guarantees memory operations prior to
// an atomic store are visible to a goroutine that observes that store
// via atomic load), so no mutex is needed once Ready is observed.
func (f *Future[T]) Actualize() (T, error) {
	if f.state.load() == Ready {
		return f.actualized, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state.load() {
	case Ready:
		return f.actualized, nil
	case Invalid:
		var zero T
		return zero, &InvalidAssetError{Initializer: f.initializer, DepVal: f.actualizedDepVal, Log: f.actualizedLog}
	default:
		var zero T
		return zero, &PendingAssetError{Initializer: f.initializer}
	}
}

// TryActualize is the non-blocking form of Actualize: ok is true only
// when the future is Ready.
func (f *Future[T]) TryActualize() (value T, ok bool) {
	if f.state.load() == Ready {
		return f.actualized, true
	}
	var zero T
	return zero, false
}

// DependencyValidation returns the depval attached to the published
// value (Ready or Invalid); it is the zero Handle while Pending.
func (f *Future[T]) DependencyValidation() depval.Handle {
	if f.state.load() == Pending {
		return depval.Handle{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actualizedDepVal
}

// ActualizationLog returns the diagnostic log attached to the
// published value; it is empty while Pending.
func (f *Future[T]) ActualizationLog() string {
	if f.state.load() == Pending {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actualizedLog
}

// SetAsset writes the back buffer as Ready and schedules publication
// at the next frame barrier. Precondition: GetAssetState() == Pending.
func (f *Future[T]) SetAsset(value T, log string) {
	f.mu.Lock()
	if f.state.load() != Pending {
		f.mu.Unlock()
		panic(fmt.Sprintf("future: %q: SetAsset called while not Pending", f.initializer))
	}
	f.pending = value
	f.pendingState = Ready
	f.pendingDepVal = depValOf(value)
	f.pendingLog = log
	f.scheduleLocked()
	f.mu.Unlock()
}

// SetInvalidAsset writes the back buffer as Invalid and schedules
// publication at the next frame barrier. depVal must be non-empty (if
// the zero Handle is supplied, a fresh empty-but-valid depval is
// synthesized: an Invalid
// pending depval is never the zero Handle).
func (f *Future[T]) SetInvalidAsset(dv depval.Handle, log string) {
	if dv.Empty() {
		dv = depval.Fresh()
	}
	f.mu.Lock()
	if f.state.load() != Pending {
		f.mu.Unlock()
		panic(fmt.Sprintf("future: %q: SetInvalidAsset called while not Pending", f.initializer))
	}
	f.pendingState = Invalid
	f.pendingDepVal = dv
	f.pendingLog = log
	f.scheduleLocked()
	f.mu.Unlock()
}

// SetAssetForeground bypasses the frame barrier entirely, publishing
// value directly to the front buffer and transitioning state
// immediately. It is reserved for "shadow" assets not subject to
// frame-barrier semantics.
func (f *Future[T]) SetAssetForeground(value T, log string) {
	f.mu.Lock()
	if f.state.load() != Pending {
		f.mu.Unlock()
		panic(fmt.Sprintf("future: %q: SetAssetForeground called while not Pending", f.initializer))
	}
	f.actualized = value
	f.actualizedDepVal = depValOf(value)
	f.actualizedLog = log
	f.state.store(Ready)
	f.mu.Unlock()
}

// SetInvalidAssetForeground is the Invalid counterpart of
// SetAssetForeground.
func (f *Future[T]) SetInvalidAssetForeground(dv depval.Handle, log string) {
	if dv.Empty() {
		dv = depval.Fresh()
	}
	f.mu.Lock()
	if f.state.load() != Pending {
		f.mu.Unlock()
		panic(fmt.Sprintf("future: %q: SetInvalidAssetForeground called while not Pending", f.initializer))
	}
	f.actualizedDepVal = dv
	f.actualizedLog = log
	f.state.store(Invalid)
	f.mu.Unlock()
}

// SetPollingFunction installs fn and invokes it once immediately. If
// that call returns more == false and the back buffer is then resolved
// (by fn itself or by a returned error), publication happens
// synchronously and no frame-barrier callback stays registered for the
// future. Otherwise, fn is scheduled via the frame
// barrier to be driven on subsequent Publish calls until it resolves.
func (f *Future[T]) SetPollingFunction(fn PollFunc[T]) {
	f.mu.Lock()
	if f.state.load() != Pending {
		f.mu.Unlock()
		panic(fmt.Sprintf("future: %q: SetPollingFunction called while not Pending", f.initializer))
	}
	f.pollingFn = nil
	f.mu.Unlock()

	more, err := runPoll(fn, f)

	f.mu.Lock()
	if err != nil {
		f.failLocked(err)
	} else if more {
		f.pollingFn = fn
	}
	resolvedSynchronously := f.pendingState != Pending && more == false
	if resolvedSynchronously {
		if f.state.load() == Pending {
			f.publishLocked()
		}
		if f.barrierID >= 0 {
			f.barrier.deregister(f.barrierID)
			f.barrierID = -1
		}
		f.mu.Unlock()
		return
	}
	f.scheduleLocked()
	f.mu.Unlock()
}

// failLocked transitions the back buffer to Invalid from an error
// returned by a polling function or continuation: a
// *ConstructionError carries its own depval through; anything else
// becomes a GenericFailure (message as log). Where the error supplies
// no depval, a fresh one watching no files is synthesized, so an
// Invalid pending depval is never the zero Handle.
func (f *Future[T]) failLocked(err error) {
	var ce *ConstructionError
	if ok := asConstructionError(err, &ce); ok {
		f.pendingState = Invalid
		f.pendingDepVal = ce.DepVal
		if f.pendingDepVal.Empty() {
			f.pendingDepVal = depval.Fresh()
		}
		f.pendingLog = ce.Error()
		return
	}
	f.pendingState = Invalid
	f.pendingDepVal = depval.Fresh()
	f.pendingLog = err.Error()
}

func asConstructionError(err error, target **ConstructionError) bool {
	for err != nil {
		if ce, ok := err.(*ConstructionError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// scheduleLocked registers (if not already) the frame-barrier
// callback that will publish this future's back buffer. Called with
// f.mu held.
func (f *Future[T]) scheduleLocked() {
	if f.barrierID >= 0 || f.barrier == nil {
		return
	}
	f.barrierID = f.barrier.register(func() { f.barrierTick() })
}

// publishLocked performs the back-buffer -> front-buffer swap. Called
// with f.mu held; state's transition to Ready/Invalid is the release
// operation that makes actualized observable to lock-free readers.
func (f *Future[T]) publishLocked() {
	f.actualized = f.pending
	f.actualizedDepVal = f.pendingDepVal
	f.actualizedLog = f.pendingLog
	var zero T
	f.pending = zero
	f.state.store(f.pendingState)
}

// barrierTick is invoked by Barrier.Publish. If the back buffer has
// resolved, it publishes and deregisters; if a polling function is
// still installed and has not yet resolved, it drives one more step
// and leaves the subscription in place for the next Publish.
func (f *Future[T]) barrierTick() {
	f.mu.Lock()
	if f.state.load() != Pending {
		f.mu.Unlock()
		return
	}
	fn := f.pollingFn
	f.pollingFn = nil
	f.mu.Unlock()

	if fn != nil {
		more, err := runPoll(fn, f)
		f.mu.Lock()
		if err != nil {
			f.failLocked(err)
		} else if more {
			f.pollingFn = fn
		}
		f.mu.Unlock()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.load() != Pending {
		return
	}
	if f.pendingState != Pending {
		f.publishLocked()
		f.barrier.deregister(f.barrierID)
		f.barrierID = -1
	}
	// Otherwise: still Pending with no further progress this tick
	// (fn == nil and nothing else can make progress); stay
	// registered so a future SetAsset/SetInvalidAsset or the next
	// Publish can still find and drive/publish it. Re-register if we
	// had deregistered (we didn't in this branch).
}

// resolutionKey is the context.Context key recording which futures
// are currently being resolved on the calling goroutine's logical
// call chain, for StallWhilePending's deadlock check.
type resolutionKey struct{}

type resolvable = any

// WithResolving returns a context recording that f is being resolved
// on this call chain; StallWhilePending on f with that context (or one
// derived from it) returns a *DeadlockDetectedError instead of
// blocking. The combinators in future/continuation.go do not call it
// and pass no context to their continuations, so detection covers
// only call chains that record futures with WithResolving themselves.
func WithResolving[T any](ctx context.Context, f *Future[T]) context.Context {
	stack, _ := ctx.Value(resolutionKey{}).([]resolvable)
	next := make([]resolvable, len(stack)+1)
	copy(next, stack)
	next[len(stack)] = f
	return context.WithValue(ctx, resolutionKey{}, next)
}

func isResolving[T any](ctx context.Context, f *Future[T]) bool {
	stack, _ := ctx.Value(resolutionKey{}).([]resolvable)
	for _, s := range stack {
		if s == resolvable(f) {
			return true
		}
	}
	return false
}

// stallQuantum is the cooperative yield interval between poll
// iterations while stalling.
const stallQuantum = 50 * time.Microsecond

// StallWhilePending blocks until the future leaves Pending or timeout
// elapses, driving its polling function (if any) cooperatively. ok is
// false on timeout. A timeout of
// zero performs at most one non-blocking attempt: if the future is
// already resolved, it returns immediately; otherwise it makes one
// poll attempt and returns without waiting further.
//
// If the calling goroutine is already resolving f higher up its own
// logical call chain (tracked via ctx, see WithResolving), this
// returns a *DeadlockDetectedError instead of blocking.
func (f *Future[T]) StallWhilePending(ctx context.Context, timeout time.Duration) (state AssetState, ok bool, err error) {
	if isResolving(ctx, f) {
		return Pending, false, &DeadlockDetectedError{Initializer: f.initializer}
	}

	var deadline time.Time
	hasDeadline := timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	for {
		f.mu.Lock()
		if s := f.state.load(); s != Pending {
			f.mu.Unlock()
			return s, true, nil
		}
		fn := f.pollingFn
		f.pollingFn = nil
		f.mu.Unlock()

		if fn != nil {
			more, perr := runPoll(fn, f)
			f.mu.Lock()
			if perr != nil {
				f.failLocked(perr)
			} else if more {
				f.pollingFn = fn
			}
			if f.pendingState != Pending && f.state.load() == Pending {
				f.publishLocked()
				if f.barrierID >= 0 {
					f.barrier.deregister(f.barrierID)
					f.barrierID = -1
				}
			}
			s := f.state.load()
			f.mu.Unlock()
			if s != Pending {
				return s, true, nil
			}
		}

		if !hasDeadline {
			// timeout == 0: exactly one attempt.
			return Pending, false, nil
		}
		if !time.Now().Before(deadline) {
			return Pending, false, nil
		}

		select {
		case <-ctx.Done():
			return Pending, false, ctx.Err()
		case <-time.After(stallQuantum):
		}
	}
}

// runPoll invokes fn, recovering a panic into a GenericFailure-shaped
// error: exceptions remain acceptable for truly
// unexpected failures, caught here at the outermost polling frame.
func runPoll[T any](fn PollFunc[T], f *Future[T]) (more bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			more = false
			err = fmt.Errorf("future: %q: panic in polling function: %v", f.initializer, r)
		}
	}()
	return fn(f)
}
