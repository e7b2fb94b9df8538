package breakroom

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// gatedFetch blocks call i until a value is sent on gates[i].
type gatedFetch struct {
	calls atomic.Int32
	gates []chan string
}

func newGatedFetch(n int) *gatedFetch {
	f := &gatedFetch{}
	for i := 0; i < n; i++ {
		f.gates = append(f.gates, make(chan string))
	}
	return f
}

func (f *gatedFetch) fetch(ctx context.Context) (string, error) {
	i := f.calls.Add(1) - 1
	select {
	case v := <-f.gates[i]:
		return v, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *gatedFetch) waitCalls(t *testing.T, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("fetch calls = %d, want %d", f.calls.Load(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestReconcilerDiscardsStaleResult(t *testing.T) {
	f := newGatedFetch(2)
	applied := make(chan string, 4)
	r := NewReconciler(f.fetch, func(v string) { applied <- v })
	defer r.Close()

	type result struct {
		ok  bool
		err error
	}
	stale := make(chan result, 1)
	go func() {
		ok, err := r.Refresh(context.Background())
		stale <- result{ok, err}
	}()
	f.waitCalls(t, 1)
	r.Trigger()
	f.waitCalls(t, 2)

	f.gates[1] <- "second"
	select {
	case got := <-applied:
		if got != "second" {
			t.Fatalf("applied %q, want second", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("newer result was never applied")
	}

	// Refresh returns only after its result has been committed or dropped.
	f.gates[0] <- "first"
	select {
	case res := <-stale:
		if res.err != nil || res.ok {
			t.Errorf("stale Refresh = %v, %v, want false, nil", res.ok, res.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stale Refresh never returned")
	}
	select {
	case got := <-applied:
		t.Errorf("stale result %q was applied after a newer one", got)
	default:
	}
}

func TestReconcilerRefresh(t *testing.T) {
	var got string
	r := NewReconciler(func(context.Context) (string, error) { return "fresh", nil }, func(v string) { got = v })
	defer r.Close()

	ok, err := r.Refresh(context.Background())
	if err != nil || !ok {
		t.Fatalf("Refresh = %v, %v", ok, err)
	}
	if got != "fresh" {
		t.Errorf("applied %q, want fresh", got)
	}
}

func TestReconcilerRefreshError(t *testing.T) {
	boom := errors.New("remote unavailable")
	applied := false
	r := NewReconciler(func(context.Context) (int, error) { return 0, boom }, func(int) { applied = true })
	defer r.Close()

	if _, err := r.Refresh(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if applied {
		t.Error("failed fetch was applied")
	}
}

func TestReconcilerPolls(t *testing.T) {
	clock := clockwork.NewFakeClock()
	applied := make(chan int, 1)
	var n atomic.Int32
	fetch := func(context.Context) (int, error) { return int(n.Add(1)), nil }
	r := NewReconciler(fetch, func(v int) { applied <- v }, WithClock(clock), WithPollInterval(10*time.Second))
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Second)

	select {
	case v := <-applied:
		if v != 1 {
			t.Errorf("applied %d, want 1", v)
		}
	case <-ctx.Done():
		t.Fatal("poll never fetched")
	}
}

func TestReconcilerClosedIgnoresTriggers(t *testing.T) {
	var calls atomic.Int32
	r := NewReconciler(func(context.Context) (int, error) { calls.Add(1); return 0, nil }, func(int) {})
	r.Close()
	r.Trigger()
	if ok, err := r.Refresh(context.Background()); ok || err != nil {
		t.Errorf("Refresh after Close = %v, %v", ok, err)
	}
	if calls.Load() != 0 {
		t.Errorf("fetch called %d times after Close", calls.Load())
	}
}
