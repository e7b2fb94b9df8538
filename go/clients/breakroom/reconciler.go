package breakroom

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mcdev12/breakroom/go/internal/models"
)

// Reconciler re-fetches authoritative state whenever it is told something changed.
// Every fetch is stamped with a sequence token; a result is applied only if no newer
// fetch was issued after it, so a slow response can never overwrite a fresher one.
type Reconciler[T any] struct {
	fetch  func(ctx context.Context) (T, error)
	apply  func(T)
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	issued uint64
	closed bool
}

type reconcilerOptions struct {
	clock    clockwork.Clock
	interval time.Duration
	logger   zerolog.Logger
}

type ReconcilerOption func(*reconcilerOptions)

// WithPollInterval also re-fetches on a fixed interval, for when the change feed is unavailable.
func WithPollInterval(d time.Duration) ReconcilerOption {
	return func(o *reconcilerOptions) { o.interval = d }
}

func WithClock(c clockwork.Clock) ReconcilerOption {
	return func(o *reconcilerOptions) { o.clock = c }
}

func WithLogger(l zerolog.Logger) ReconcilerOption {
	return func(o *reconcilerOptions) { o.logger = l }
}

// NewReconciler calls fetch on every trigger and passes fresh results to apply.
// apply is never called concurrently with itself.
func NewReconciler[T any](fetch func(ctx context.Context) (T, error), apply func(T), opts ...ReconcilerOption) *Reconciler[T] {
	o := reconcilerOptions{clock: clockwork.NewRealClock(), logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler[T]{
		fetch:  fetch,
		apply:  apply,
		logger: o.logger,
		ctx:    ctx,
		cancel: cancel,
	}
	if o.interval > 0 {
		ticker := o.clock.NewTicker(o.interval)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.Chan():
					r.Trigger()
				}
			}
		}()
	}
	return r
}

// OnChange triggers a fetch. It has the signature Feed.Subscribe expects; the event
// itself is ignored.
func (r *Reconciler[T]) OnChange(models.ChangeEvent) {
	r.Trigger()
}

// Trigger starts a background fetch. Failures are logged; the next trigger or poll retries.
func (r *Reconciler[T]) Trigger() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.issued++
	seq := r.issued
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		v, err := r.fetch(r.ctx)
		if err != nil {
			if r.ctx.Err() == nil {
				r.logger.Warn().Err(err).Uint64("seq", seq).Msg("background refresh failed")
			}
			return
		}
		r.commit(seq, v)
	}()
}

// Refresh fetches synchronously, for example when a window regains focus.
// It reports whether the result was applied.
func (r *Reconciler[T]) Refresh(ctx context.Context) (bool, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false, nil
	}
	r.issued++
	seq := r.issued
	r.mu.Unlock()

	v, err := r.fetch(ctx)
	if err != nil {
		return false, err
	}
	return r.commit(seq, v), nil
}

// Close stops polling, abandons in-flight fetches and waits for them to return.
func (r *Reconciler[T]) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

func (r *Reconciler[T]) commit(seq uint64, v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || seq != r.issued {
		r.logger.Debug().Uint64("seq", seq).Uint64("latest", r.issued).Msg("discarding stale refresh")
		return false
	}
	r.apply(v)
	return true
}
