// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package future

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gviegas/forge/depval"
)

// TestThrashManyFuturesNoDeadlock resolves thousands of futures
// concurrently under random delays, a fraction invalid, a fraction
// abandoned outright, driven against a barrier being published on a
// separate ticking goroutine. Every non-abandoned future must reach a
// terminal state, and no concurrent StallWhilePending call may report
// a spurious deadlock.
func TestThrashManyFuturesNoDeadlock(t *testing.T) {
	const n = 10000
	const invalidFraction = 0.50
	const abandonFraction = 0.01

	barrier := NewBarrier()
	rng := rand.New(rand.NewSource(1))

	futures := make([]*Future[int], n)
	abandoned := make([]bool, n)
	for i := range futures {
		futures[i] = New[int]("thrash", barrier)
		abandoned[i] = rng.Float64() < abandonFraction
	}

	stop := make(chan struct{})
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		t := time.NewTicker(200 * time.Microsecond)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				barrier.Publish()
			case <-stop:
				return
			}
		}
	}()

	var producers errgroup.Group
	for i := range futures {
		i := i
		if abandoned[i] {
			continue
		}
		invalid := rng.Float64() < invalidFraction
		delay := time.Duration(rng.Intn(2000)) * time.Microsecond
		producers.Go(func() error {
			time.Sleep(delay)
			if invalid {
				futures[i].SetInvalidAsset(depval.Fresh(), "thrash: forced invalid")
			} else {
				futures[i].SetAsset(i, "thrash: resolved")
			}
			return nil
		})
	}
	if err := producers.Wait(); err != nil {
		t.Fatalf("producers: unexpected error: %v", err)
	}

	var deadlocks atomic.Int32
	var waiters errgroup.Group
	for i := range futures {
		i := i
		if abandoned[i] {
			continue
		}
		waiters.Go(func() error {
			state, ok, err := futures[i].StallWhilePending(context.Background(), time.Second)
			if err != nil {
				if _, isDeadlock := err.(*DeadlockDetectedError); isDeadlock {
					deadlocks.Add(1)
					return nil
				}
				return err
			}
			if !ok {
				t.Errorf("StallWhilePending[%d]: timed out", i)
			}
			if state == Pending {
				t.Errorf("GetAssetState[%d]: have Pending, want terminal", i)
			}
			return nil
		})
	}
	if err := waiters.Wait(); err != nil {
		t.Fatalf("waiters: unexpected error: %v", err)
	}

	close(stop)
	<-tickerDone

	if got := deadlocks.Load(); got != 0 {
		t.Fatalf("DeadlockDetectedError count:\nhave %d\nwant 0", got)
	}

	var terminal, pending int
	for i, f := range futures {
		if abandoned[i] {
			continue
		}
		if f.GetAssetState() == Pending {
			pending++
		} else {
			terminal++
		}
	}
	if pending != 0 {
		t.Fatalf("non-abandoned futures left Pending:\nhave %d\nwant 0 (terminal: %d)", pending, terminal)
	}
}
