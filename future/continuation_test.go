// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package future

import (
	"strings"
	"testing"

	"github.com/gviegas/forge/depval"
)

// TestWhenAll3Sum verifies the happy path: WhenAll(A,B,C).Then(sum)
// with A=0,B=1,C=2 Ready yields an output future Ready with value 3.
func TestWhenAll3Sum(t *testing.T) {
	b := NewBarrier()
	fa := New[int]("a", b)
	fb := New[int]("b", b)
	fc := New[int]("c", b)
	out := New[int]("sum", b)

	WhenAll3(out, fa, fb, fc, func(a, b, c int) (int, error) {
		return a + b + c, nil
	})
	if s := out.GetAssetState(); s != Pending {
		t.Fatalf("GetAssetState before inputs resolve:\nhave %v\nwant %v", s, Pending)
	}

	fa.SetAssetForeground(0, "")
	fb.SetAssetForeground(1, "")
	fc.SetAssetForeground(2, "")
	b.Publish()

	if s := out.GetAssetState(); s != Ready {
		t.Fatalf("GetAssetState after inputs resolve:\nhave %v\nwant %v", s, Ready)
	}
	v, err := out.Actualize()
	if err != nil {
		t.Fatalf("Actualize: unexpected error: %v", err)
	}
	if v != 3 {
		t.Fatalf("Actualize:\nhave %d\nwant %d", v, 3)
	}
}

// TestWhenAll3InvalidInputPropagates verifies the failure path: B
// set to Invalid instead of Ready propagates an Invalid output
// carrying a log naming the failing sub-asset index.
func TestWhenAll3InvalidInputPropagates(t *testing.T) {
	b := NewBarrier()
	fa := New[int]("a", b)
	fb := New[int]("b", b)
	fc := New[int]("c", b)
	out := New[int]("sum", b)

	WhenAll3(out, fa, fb, fc, func(a, b, c int) (int, error) {
		return a + b + c, nil
	})

	fa.SetAssetForeground(0, "")
	fb.SetInvalidAssetForeground(depval.Fresh(), "bad value")
	fc.SetAssetForeground(2, "")
	b.Publish()

	if s := out.GetAssetState(); s != Invalid {
		t.Fatalf("GetAssetState:\nhave %v\nwant %v", s, Invalid)
	}
	_, err := out.Actualize()
	ia, ok := err.(*InvalidAssetError)
	if !ok {
		t.Fatalf("Actualize: error type:\nhave %T\nwant *InvalidAssetError", err)
	}
	want := "Failed to actualize subasset number (1): bad value"
	if !strings.Contains(ia.Log, want) {
		t.Fatalf("Actualize log:\nhave %q\nwant substring %q", ia.Log, want)
	}
}

// TestWhenAll8Sum verifies the highest fixed-arity overload: 8 inputs
// resolved to 1..8 sum to 36 once every input is Ready.
func TestWhenAll8Sum(t *testing.T) {
	b := NewBarrier()
	fs := make([]*Future[int], 8)
	for i := range fs {
		fs[i] = New[int]("in", b)
	}
	out := New[int]("sum8", b)

	WhenAll8(out, fs[0], fs[1], fs[2], fs[3], fs[4], fs[5], fs[6], fs[7],
		func(a, b, c, d, e, f, g, h int) (int, error) {
			return a + b + c + d + e + f + g + h, nil
		})
	for i, f := range fs {
		f.SetAssetForeground(i+1, "")
	}
	b.Publish()

	if s := out.GetAssetState(); s != Ready {
		t.Fatalf("GetAssetState:\nhave %v\nwant %v", s, Ready)
	}
	v, err := out.Actualize()
	if err != nil {
		t.Fatalf("Actualize: unexpected error: %v", err)
	}
	if v != 36 {
		t.Fatalf("Actualize:\nhave %d\nwant %d", v, 36)
	}
}

// TestWhenAll5InvalidInputPropagates verifies that a mid-arity
// overload (5 inputs) propagates an Invalid input the same way
// WhenAll3 does.
func TestWhenAll5InvalidInputPropagates(t *testing.T) {
	b := NewBarrier()
	fs := make([]*Future[int], 5)
	for i := range fs {
		fs[i] = New[int]("in", b)
	}
	out := New[int]("sum5", b)

	WhenAll5(out, fs[0], fs[1], fs[2], fs[3], fs[4], func(a, b, c, d, e int) (int, error) {
		return a + b + c + d + e, nil
	})
	fs[0].SetAssetForeground(1, "")
	fs[1].SetAssetForeground(2, "")
	fs[2].SetInvalidAssetForeground(depval.Fresh(), "bad value")
	fs[3].SetAssetForeground(4, "")
	fs[4].SetAssetForeground(5, "")
	b.Publish()

	if s := out.GetAssetState(); s != Invalid {
		t.Fatalf("GetAssetState:\nhave %v\nwant %v", s, Invalid)
	}
}

func TestThenChain2InstallsFurtherPolling(t *testing.T) {
	b := NewBarrier()
	fa := New[int]("a", b)
	fb := New[int]("b", b)
	out := New[int]("chained", b)

	ThenChain2(out, fa, fb, func(o *Future[int], a, b int) {
		ticks := 0
		o.SetPollingFunction(func(o *Future[int]) (bool, error) {
			ticks++
			if ticks < 2 {
				return true, nil
			}
			o.SetAsset(a+b, "")
			return false, nil
		})
	})

	fa.SetAssetForeground(10, "")
	fb.SetAssetForeground(20, "")
	b.Publish() // resolves inputs, installs chained poller (tick 1)
	if s := out.GetAssetState(); s != Pending {
		t.Fatalf("GetAssetState after chaining:\nhave %v\nwant %v", s, Pending)
	}
	b.Publish() // drives chained poller to completion (tick 2)
	if s := out.GetAssetState(); s != Ready {
		t.Fatalf("GetAssetState after chained resolve:\nhave %v\nwant %v", s, Ready)
	}
	v, _ := out.Actualize()
	if v != 30 {
		t.Fatalf("Actualize:\nhave %d\nwant %d", v, 30)
	}
}
