package series_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"seriesd/internal/series"
)

type testItem struct {
	key string
	n   int
}

func itemKey(it testItem) string { return it.key }

// recorder is a Handler that records every hook call.
type recorder struct {
	mu       sync.Mutex
	starts   int
	items    []testItem
	finishes int
	finished chan struct{}

	inFlight atomic.Int32
	overlap  atomic.Bool

	startErr  error
	finishErr error
	handle    func(ctx context.Context, item testItem) error
	finish    func(ctx context.Context) error
}

func newRecorder() *recorder {
	return &recorder{finished: make(chan struct{})}
}

func (r *recorder) OnStart(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return r.startErr
}

func (r *recorder) OnHandle(ctx context.Context, item testItem) error {
	if r.inFlight.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.inFlight.Add(-1)

	var err error
	if r.handle != nil {
		err = r.handle(ctx, item)
	}
	r.mu.Lock()
	r.items = append(r.items, item)
	r.mu.Unlock()
	return err
}

func (r *recorder) OnFinish(ctx context.Context) error {
	var err error
	if r.finish != nil {
		err = r.finish(ctx)
	}
	r.mu.Lock()
	r.finishes++
	if r.finishes == 1 {
		close(r.finished)
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.finishErr
}

func (r *recorder) counts() (starts, items, finishes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, len(r.items), r.finishes
}

func (r *recorder) handled() []testItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]testItem(nil), r.items...)
}

// fakeRemover records Remove calls for workers used outside a registry.
type fakeRemover struct {
	mu      sync.Mutex
	removed []*series.Worker[testItem]
	err     error
}

func (f *fakeRemover) Remove(w *series.Worker[testItem]) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, w)
	return f.err
}

func (f *fakeRemover) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removed)
}

// countingObserver tallies lifecycle events.
type countingObserver struct {
	started, finished, handled, failed, rejected, setupFailed atomic.Int32
}

func (o *countingObserver) WorkerStarted(series.WorkerInfo) { o.started.Add(1) }

func (o *countingObserver) WorkerFinished(series.WorkerInfo, error) { o.finished.Add(1) }

func (o *countingObserver) ItemHandled(_ series.WorkerInfo, _ time.Duration, err error) {
	o.handled.Add(1)
	if err != nil {
		o.failed.Add(1)
	}
}

func (o *countingObserver) DispatchRejected(string, error) { o.rejected.Add(1) }

func (o *countingObserver) WorkerSetupFailed(string, error) { o.setupFailed.Add(1) }

func waitClosed(t *testing.T, ch <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func ctxWithTimeout(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}
