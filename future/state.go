// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package future implements Future[T], a polymorphic promise carrying
// a value through Pending -> Ready/Invalid, plus the frame-barrier
// publication protocol and the WhenAll/Then continuation primitive
// that composes futures.
package future

import (
	"fmt"
	"sync/atomic"

	"github.com/gviegas/forge/depval"
)

// AssetState is the lifecycle state of a Future.
type AssetState int32

// atomicState wraps atomic.Int32 with AssetState's type, giving
// Future a sequentially consistent state word that lock-free readers
// (Actualize's Ready fast path) can observe without the mutex.
type atomicState struct{ v atomic.Int32 }

func (s *atomicState) load() AssetState    { return AssetState(s.v.Load()) }
func (s *atomicState) store(st AssetState) { s.v.Store(int32(st)) }

const (
	Pending AssetState = iota
	Ready
	Invalid
)

func (s AssetState) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Ready:
		return "Ready"
	case Invalid:
		return "Invalid"
	default:
		return fmt.Sprintf("AssetState(%d)", int32(s))
	}
}

// PendingAssetError is returned by Actualize when the future has not
// yet left the Pending state.
type PendingAssetError struct{ Initializer string }

func (e *PendingAssetError) Error() string {
	return fmt.Sprintf("future: %q: asset is pending", e.Initializer)
}

// InvalidAssetError is returned by Actualize when the future resolved
// to Invalid, and is the error propagated by continuations that
// depend on such a future.
type InvalidAssetError struct {
	Initializer string
	DepVal      depval.Handle
	Log         string
}

func (e *InvalidAssetError) Error() string {
	if e.Log == "" {
		return fmt.Sprintf("future: %q: invalid asset: <<no log>>", e.Initializer)
	}
	return fmt.Sprintf("future: %q: invalid asset: %s", e.Initializer, e.Log)
}

// ConstructionError is returned by a polling function or continuation
// to carry depval context alongside the failure. A Future that fails
// with a ConstructionError becomes Invalid with exactly that depval
// and log.
type ConstructionError struct {
	Err    error
	DepVal depval.Handle
}

func (e *ConstructionError) Error() string { return e.Err.Error() }
func (e *ConstructionError) Unwrap() error { return e.Err }

// DeadlockDetectedError is returned by StallWhilePending when the
// calling goroutine is already resolving the same future higher up
// its own call stack.
type DeadlockDetectedError struct{ Initializer string }

func (e *DeadlockDetectedError) Error() string {
	return fmt.Sprintf("future: %q: deadlock detected: already resolving on this goroutine", e.Initializer)
}

// DepValer is implemented by payload types that can produce a depval.
// Future collapses the source implementation's three flavors (has
// GetDependencyValidation, has-deref-GetDependencyValidation, has
// neither) into this single interface: Go's type assertion against
// `any(v)` already handles the pointer/value-receiver distinction, so
// no separate "deref" case is needed.
type DepValer interface {
	DependencyValidation() depval.Handle
}

// depValOf extracts a depval from a payload value if it implements
// DepValer, or returns the empty Handle otherwise.
func depValOf[T any](v T) depval.Handle {
	if dv, ok := any(v).(DepValer); ok {
		return dv.DependencyValidation()
	}
	return depval.Handle{}
}
