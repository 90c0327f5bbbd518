// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package future

import (
	"fmt"

	"github.com/gviegas/forge/depval"
)

// checkable is implemented by every *Future[T]; it lets the WhenAll
// combinators inspect a heterogeneous tuple of futures without
// needing a common value type, mirroring the source's
// Internal::CheckAssetState tuple walk without C++ template
// recursion.
type checkable interface {
	checkState() (AssetState, depval.Handle, string)
}

func (f *Future[T]) checkState() (AssetState, depval.Handle, string) {
	s := f.GetAssetState()
	if s == Pending {
		return Pending, depval.Handle{}, ""
	}
	return s, f.DependencyValidation(), f.ActualizationLog()
}

// combineState walks subs in order (index 0 first). The first Invalid
// input found wins outright — scanning stops there — regardless of
// whether an earlier input was still Pending, matching the original
// CheckAssetState recursion exactly. If none is Invalid, the
// result is Pending if any input is Pending, else Ready.
func combineState(subs ...checkable) (state AssetState, dv depval.Handle, log string) {
	state = Ready
	for i, s := range subs {
		st, d, l := s.checkState()
		if st == Invalid {
			if l == "" {
				l = "<<no log>>"
			}
			return Invalid, d, fmt.Sprintf("Failed to actualize subasset number (%d): %s", i, l)
		}
		if st == Pending {
			state = Pending
		}
	}
	return
}

// WhenAll2 installs a polling function on out that drives fa and fb to
// completion and then invokes fn, publishing its result to out. fn is
// invoked at most once, inside the tick that observes both inputs
// Ready; its return error is reported through the same path as any
// other polling-function failure (a *ConstructionError is unwrapped
// for its depval, any other error becomes a GenericFailure).
func WhenAll2[A, B, R any](out *Future[R], fa *Future[A], fb *Future[B], fn func(A, B) (R, error)) {
	out.SetPollingFunction(func(o *Future[R]) (bool, error) {
		state, dv, log := combineState(fa, fb)
		switch state {
		case Invalid:
			o.SetInvalidAsset(dv, log)
			return false, nil
		case Pending:
			return true, nil
		}
		a, _ := fa.TryActualize()
		b, _ := fb.TryActualize()
		v, err := fn(a, b)
		if err != nil {
			return false, err
		}
		o.SetAsset(v, "")
		return false, nil
	})
}

// WhenAll3 is the 3-input form of WhenAll2.
func WhenAll3[A, B, C, R any](out *Future[R], fa *Future[A], fb *Future[B], fc *Future[C], fn func(A, B, C) (R, error)) {
	out.SetPollingFunction(func(o *Future[R]) (bool, error) {
		state, dv, log := combineState(fa, fb, fc)
		switch state {
		case Invalid:
			o.SetInvalidAsset(dv, log)
			return false, nil
		case Pending:
			return true, nil
		}
		a, _ := fa.TryActualize()
		b, _ := fb.TryActualize()
		c, _ := fc.TryActualize()
		v, err := fn(a, b, c)
		if err != nil {
			return false, err
		}
		o.SetAsset(v, "")
		return false, nil
	})
}

// WhenAll4 is the 4-input form of WhenAll2.
func WhenAll4[A, B, C, D, R any](out *Future[R], fa *Future[A], fb *Future[B], fc *Future[C], fd *Future[D], fn func(A, B, C, D) (R, error)) {
	out.SetPollingFunction(func(o *Future[R]) (bool, error) {
		state, dv, log := combineState(fa, fb, fc, fd)
		switch state {
		case Invalid:
			o.SetInvalidAsset(dv, log)
			return false, nil
		case Pending:
			return true, nil
		}
		a, _ := fa.TryActualize()
		b, _ := fb.TryActualize()
		c, _ := fc.TryActualize()
		d, _ := fd.TryActualize()
		v, err := fn(a, b, c, d)
		if err != nil {
			return false, err
		}
		o.SetAsset(v, "")
		return false, nil
	})
}

// WhenAll5 is the 5-input form of WhenAll2.
func WhenAll5[A, B, C, D, E, R any](out *Future[R], fa *Future[A], fb *Future[B], fc *Future[C], fd *Future[D], fe *Future[E], fn func(A, B, C, D, E) (R, error)) {
	out.SetPollingFunction(func(o *Future[R]) (bool, error) {
		state, dv, log := combineState(fa, fb, fc, fd, fe)
		switch state {
		case Invalid:
			o.SetInvalidAsset(dv, log)
			return false, nil
		case Pending:
			return true, nil
		}
		a, _ := fa.TryActualize()
		b, _ := fb.TryActualize()
		c, _ := fc.TryActualize()
		d, _ := fd.TryActualize()
		e, _ := fe.TryActualize()
		v, err := fn(a, b, c, d, e)
		if err != nil {
			return false, err
		}
		o.SetAsset(v, "")
		return false, nil
	})
}

// WhenAll6 is the 6-input form of WhenAll2.
func WhenAll6[A, B, C, D, E, F, R any](out *Future[R], fa *Future[A], fb *Future[B], fc *Future[C], fd *Future[D], fe *Future[E], ff *Future[F], fn func(A, B, C, D, E, F) (R, error)) {
	out.SetPollingFunction(func(o *Future[R]) (bool, error) {
		state, dv, log := combineState(fa, fb, fc, fd, fe, ff)
		switch state {
		case Invalid:
			o.SetInvalidAsset(dv, log)
			return false, nil
		case Pending:
			return true, nil
		}
		a, _ := fa.TryActualize()
		b, _ := fb.TryActualize()
		c, _ := fc.TryActualize()
		d, _ := fd.TryActualize()
		e, _ := fe.TryActualize()
		f, _ := ff.TryActualize()
		v, err := fn(a, b, c, d, e, f)
		if err != nil {
			return false, err
		}
		o.SetAsset(v, "")
		return false, nil
	})
}

// WhenAll7 is the 7-input form of WhenAll2.
func WhenAll7[A, B, C, D, E, F, G, R any](out *Future[R], fa *Future[A], fb *Future[B], fc *Future[C], fd *Future[D], fe *Future[E], ff *Future[F], fg *Future[G], fn func(A, B, C, D, E, F, G) (R, error)) {
	out.SetPollingFunction(func(o *Future[R]) (bool, error) {
		state, dv, log := combineState(fa, fb, fc, fd, fe, ff, fg)
		switch state {
		case Invalid:
			o.SetInvalidAsset(dv, log)
			return false, nil
		case Pending:
			return true, nil
		}
		a, _ := fa.TryActualize()
		b, _ := fb.TryActualize()
		c, _ := fc.TryActualize()
		d, _ := fd.TryActualize()
		e, _ := fe.TryActualize()
		f, _ := ff.TryActualize()
		g, _ := fg.TryActualize()
		v, err := fn(a, b, c, d, e, f, g)
		if err != nil {
			return false, err
		}
		o.SetAsset(v, "")
		return false, nil
	})
}

// WhenAll8 is the 8-input form of WhenAll2.
func WhenAll8[A, B, C, D, E, F, G, H, R any](out *Future[R], fa *Future[A], fb *Future[B], fc *Future[C], fd *Future[D], fe *Future[E], ff *Future[F], fg *Future[G], fh *Future[H], fn func(A, B, C, D, E, F, G, H) (R, error)) {
	out.SetPollingFunction(func(o *Future[R]) (bool, error) {
		state, dv, log := combineState(fa, fb, fc, fd, fe, ff, fg, fh)
		switch state {
		case Invalid:
			o.SetInvalidAsset(dv, log)
			return false, nil
		case Pending:
			return true, nil
		}
		a, _ := fa.TryActualize()
		b, _ := fb.TryActualize()
		c, _ := fc.TryActualize()
		d, _ := fd.TryActualize()
		e, _ := fe.TryActualize()
		f, _ := ff.TryActualize()
		g, _ := fg.TryActualize()
		h, _ := fh.TryActualize()
		v, err := fn(a, b, c, d, e, f, g, h)
		if err != nil {
			return false, err
		}
		o.SetAsset(v, "")
		return false, nil
	})
}

// WhenAllSlice is the dynamic-arity, homogeneous counterpart of
// WhenAll2..WhenAll8, for an unbounded N input futures of the same
// type (e.g. instantiating a node graph with a variable number of
// parameter captures).
func WhenAllSlice[T, R any](out *Future[R], subs []*Future[T], fn func([]T) (R, error)) {
	out.SetPollingFunction(func(o *Future[R]) (bool, error) {
		cs := make([]checkable, len(subs))
		for i, s := range subs {
			cs[i] = s
		}
		state, dv, log := combineState(cs...)
		switch state {
		case Invalid:
			o.SetInvalidAsset(dv, log)
			return false, nil
		case Pending:
			return true, nil
		}
		vals := make([]T, len(subs))
		for i, s := range subs {
			vals[i], _ = s.TryActualize()
		}
		v, err := fn(vals)
		if err != nil {
			return false, err
		}
		o.SetAsset(v, "")
		return false, nil
	})
}

// ThenChain2 is the "(&mut Future<U>, T1, T2) -> ()" form of WhenAll2:
// once both inputs are Ready, fn runs with direct access to out and
// may install a further polling function on it to chain additional
// asynchronous work. fn must leave out either
// resolved or carrying a new polling function — the combinator itself
// always returns false once fn has executed, since fn owns out's fate
// from that point on.
func ThenChain2[A, B any, R any](out *Future[R], fa *Future[A], fb *Future[B], fn func(o *Future[R], a A, b B)) {
	out.SetPollingFunction(func(o *Future[R]) (bool, error) {
		state, dv, log := combineState(fa, fb)
		switch state {
		case Invalid:
			o.SetInvalidAsset(dv, log)
			return false, nil
		case Pending:
			return true, nil
		}
		a, _ := fa.TryActualize()
		b, _ := fb.TryActualize()
		fn(o, a, b)
		return false, nil
	})
}
