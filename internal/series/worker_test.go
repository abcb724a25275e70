package series_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"seriesd/internal/series"
)

func newTestWorker(t *testing.T, name string, timeout time.Duration, h series.Handler[testItem], remover series.Remover[testItem]) *series.Worker[testItem] {
	t.Helper()
	w, err := series.NewWorker[testItem](name, timeout, h, remover)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	return w
}

func TestNewWorkerValidatesArguments(t *testing.T) {
	h := newRecorder()
	tests := []struct {
		name    string
		key     string
		timeout time.Duration
		handler series.Handler[testItem]
	}{
		{"empty name", " ", time.Second, h},
		{"zero timeout", "a", 0, h},
		{"negative timeout", "a", -time.Second, h},
		{"nil handler", "a", time.Second, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := series.NewWorker[testItem](tc.key, tc.timeout, tc.handler, nil)
			if !errors.Is(err, series.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestWorkerFinalizesAfterIdleTimeout(t *testing.T) {
	h := newRecorder()
	rm := &fakeRemover{}
	w := newTestWorker(t, "s1", 50*time.Millisecond, h, rm)

	if w.State() != series.StateCreated {
		t.Fatalf("expected created state, got %s", w.State())
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if w.State() != series.StateWaiting {
		t.Fatalf("expected waiting after start, got %s", w.State())
	}
	if err := w.Join(ctxWithTimeout(t, 2*time.Second)); err != nil {
		t.Fatalf("Join: %v", err)
	}

	starts, items, finishes := h.counts()
	if starts != 1 || items != 0 || finishes != 1 {
		t.Fatalf("unexpected hook counts start=%d items=%d finish=%d", starts, items, finishes)
	}
	if rm.count() != 1 {
		t.Fatalf("expected exactly one removal, got %d", rm.count())
	}
	if w.State() != series.StateTerminated {
		t.Fatalf("expected terminated state, got %s", w.State())
	}
	if w.Info().Terminated {
		t.Fatal("idle expiry must not be reported as forced termination")
	}
}

func TestWorkerSubmitResetsIdleClock(t *testing.T) {
	h := newRecorder()
	w := newTestWorker(t, "s1", 150*time.Millisecond, h, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	began := time.Now()
	for i := range 6 {
		if err := w.Submit(context.Background(), testItem{key: "s1", n: i}); err != nil {
			t.Fatalf("Submit %d after %s: %v", i, time.Since(began), err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if time.Since(began) < 150*time.Millisecond {
		t.Fatal("test did not outlive a single timeout window")
	}
	if _, _, finishes := h.counts(); finishes != 0 {
		t.Fatal("series finalized while items kept arriving")
	}

	if err := w.Join(ctxWithTimeout(t, 2*time.Second)); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, items, finishes := h.counts(); items != 6 || finishes != 1 {
		t.Fatalf("expected 6 items and one finish, got %d/%d", items, finishes)
	}
	if info := w.Info(); info.Items != 6 || info.Failures != 0 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestWorkerSubmitBeforeStartIsRejected(t *testing.T) {
	w := newTestWorker(t, "s1", time.Second, newRecorder(), nil)
	err := w.Submit(context.Background(), testItem{key: "s1"})
	if !errors.Is(err, series.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if errors.Is(err, series.ErrFinalizing) {
		t.Fatal("unstarted worker must not report finalizing")
	}
	if err := w.Join(context.Background()); !errors.Is(err, series.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState joining unstarted worker, got %v", err)
	}
}

func TestWorkerStartTwiceFails(t *testing.T) {
	w := newTestWorker(t, "s1", time.Second, newRecorder(), nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		w.Terminate()
		_ = w.Join(context.Background())
	})
	if err := w.Start(context.Background()); !errors.Is(err, series.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second start, got %v", err)
	}
}

func TestWorkerStartFailureTerminates(t *testing.T) {
	h := newRecorder()
	h.startErr = errors.New("destination unavailable")
	rm := &fakeRemover{}
	w := newTestWorker(t, "s1", time.Second, h, rm)

	err := w.Start(context.Background())
	if !errors.Is(err, h.startErr) {
		t.Fatalf("expected OnStart error, got %v", err)
	}
	if w.State() != series.StateTerminated {
		t.Fatalf("expected terminated, got %s", w.State())
	}
	waitClosed(t, w.Done(), time.Second, "done after failed start")
	if !errors.Is(w.Err(), h.startErr) {
		t.Fatalf("expected Err to carry start failure, got %v", w.Err())
	}
	if _, _, finishes := h.counts(); finishes != 0 {
		t.Fatal("OnFinish must not run after a failed start")
	}
	if rm.count() != 0 {
		t.Fatal("failed start must not call Remove")
	}
	if err := w.Submit(context.Background(), testItem{key: "s1"}); !errors.Is(err, series.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after failed start, got %v", err)
	}
}

func TestWorkerTerminateBeforeStart(t *testing.T) {
	h := newRecorder()
	w := newTestWorker(t, "s1", time.Second, h, nil)
	w.Terminate()
	if err := w.Start(context.Background()); !errors.Is(err, series.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if starts, _, _ := h.counts(); starts != 0 {
		t.Fatal("OnStart ran for a terminated worker")
	}
	if err := w.Join(context.Background()); err != nil {
		t.Fatalf("Join after terminated start: %v", err)
	}
}

func TestWorkerHandlesItemsInSubmissionOrderWithoutOverlap(t *testing.T) {
	h := newRecorder()
	h.handle = func(context.Context, testItem) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	}
	w := newTestWorker(t, "s1", time.Second, h, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 5 {
				if err := w.Submit(context.Background(), testItem{key: "s1", n: g*100 + i}); err != nil {
					t.Errorf("Submit: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	// A single producer observes strict ordering.
	for i := range 5 {
		if err := w.Submit(context.Background(), testItem{key: "s1", n: 1000 + i}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	w.Terminate()
	if err := w.Join(ctxWithTimeout(t, 2*time.Second)); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if h.overlap.Load() {
		t.Fatal("OnHandle calls overlapped for one series")
	}
	items := h.handled()
	if len(items) != 45 {
		t.Fatalf("expected 45 handled items, got %d", len(items))
	}
	tail := items[40:]
	for i, it := range tail {
		if it.n != 1000+i {
			t.Fatalf("items out of order: %v", tail)
		}
	}
}

func TestWorkerTerminateIsIdempotent(t *testing.T) {
	h := newRecorder()
	rm := &fakeRemover{}
	w := newTestWorker(t, "s1", time.Hour, h, rm)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Terminate()
		}()
	}
	wg.Wait()
	w.Terminate()

	if err := w.Join(ctxWithTimeout(t, 2*time.Second)); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, _, finishes := h.counts(); finishes != 1 {
		t.Fatalf("expected one finish, got %d", finishes)
	}
	if rm.count() != 1 {
		t.Fatalf("expected one removal, got %d", rm.count())
	}
	if !w.Info().Terminated {
		t.Fatal("expected forced termination to be recorded")
	}
	w.Terminate()

	err := w.Submit(context.Background(), testItem{key: "s1"})
	if !errors.Is(err, series.ErrInvalidState) || !errors.Is(err, series.ErrFinalizing) {
		t.Fatalf("expected finalizing rejection, got %v", err)
	}
}

func TestWorkerTerminateWaitsForInFlightItem(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := newRecorder()
	h.handle = func(context.Context, testItem) error {
		close(entered)
		<-release
		return nil
	}
	w := newTestWorker(t, "s1", time.Hour, h, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	submitted := make(chan error, 1)
	go func() { submitted <- w.Submit(context.Background(), testItem{key: "s1"}) }()
	waitClosed(t, entered, time.Second, "handler entry")
	if w.State() != series.StateRunning {
		t.Fatalf("expected running during handler call, got %s", w.State())
	}

	w.Terminate()
	time.Sleep(20 * time.Millisecond)
	if _, _, finishes := h.counts(); finishes != 0 {
		t.Fatal("OnFinish ran while an item was in flight")
	}

	close(release)
	if err := <-submitted; err != nil {
		t.Fatalf("in-flight Submit: %v", err)
	}
	if err := w.Join(ctxWithTimeout(t, 2*time.Second)); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, items, finishes := h.counts(); items != 1 || finishes != 1 {
		t.Fatalf("expected item then finish, got %d/%d", items, finishes)
	}
}

func TestWorkerHandlerErrorKeepsSeriesAlive(t *testing.T) {
	h := newRecorder()
	boom := errors.New("bad item")
	h.handle = func(_ context.Context, it testItem) error {
		if it.n == 1 {
			return boom
		}
		return nil
	}
	obs := &countingObserver{}
	w, err := series.NewWorker[testItem]("s1", time.Hour, h, nil, series.WithObserver(obs))
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		w.Terminate()
		_ = w.Join(context.Background())
	}()

	if err := w.Submit(context.Background(), testItem{key: "s1", n: 1}); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if err := w.Submit(context.Background(), testItem{key: "s1", n: 2}); err != nil {
		t.Fatalf("series should keep accepting items: %v", err)
	}
	info := w.Info()
	if info.Items != 2 || info.Failures != 1 {
		t.Fatalf("unexpected counters %+v", info)
	}
	if obs.handled.Load() != 2 || obs.failed.Load() != 1 || obs.started.Load() != 1 {
		t.Fatalf("unexpected observer counts handled=%d failed=%d started=%d",
			obs.handled.Load(), obs.failed.Load(), obs.started.Load())
	}
}

func TestWorkerTerminateSeriesErrorEscalates(t *testing.T) {
	h := newRecorder()
	h.handle = func(context.Context, testItem) error {
		return errors.Join(errors.New("remote closed"), series.ErrTerminateSeries)
	}
	w := newTestWorker(t, "s1", time.Hour, h, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Submit(context.Background(), testItem{key: "s1"}); !errors.Is(err, series.ErrTerminateSeries) {
		t.Fatalf("expected escalation error, got %v", err)
	}
	if err := w.Join(ctxWithTimeout(t, 2*time.Second)); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, _, finishes := h.counts(); finishes != 1 {
		t.Fatalf("expected finish after escalation, got %d", finishes)
	}
}

func TestWorkerJoinFromOwnHookFails(t *testing.T) {
	var w *series.Worker[testItem]
	joinErr := make(chan error, 1)
	h := newRecorder()
	h.handle = func(ctx context.Context, _ testItem) error {
		joinErr <- w.Join(ctx)
		return nil
	}
	w = newTestWorker(t, "s1", time.Hour, h, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Submit(context.Background(), testItem{key: "s1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := <-joinErr; !errors.Is(err, series.ErrSelfJoin) {
		t.Fatalf("expected ErrSelfJoin, got %v", err)
	}
	w.Terminate()
	if err := w.Join(ctxWithTimeout(t, 2*time.Second)); err != nil {
		t.Fatalf("Join: %v", err)
	}
}

func TestWorkerHookContextCarriesIdentity(t *testing.T) {
	var gotKey, gotID string
	h := series.HandlerFuncs[testItem]{
		Start: func(ctx context.Context) error {
			gotKey, _ = series.KeyFromContext(ctx)
			gotID, _ = series.WorkerIDFromContext(ctx)
			return nil
		},
	}
	w, err := series.NewWorker[testItem]("s1", time.Hour, h, nil, series.WithWorkerID("run-1"))
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Terminate()
	_ = w.Join(context.Background())
	if gotKey != "s1" || gotID != "run-1" {
		t.Fatalf("unexpected hook identity key=%q id=%q", gotKey, gotID)
	}
	if _, ok := series.KeyFromContext(context.Background()); ok {
		t.Fatal("plain context must not carry a series key")
	}
}

func TestWorkerFinishErrorStillRemoves(t *testing.T) {
	h := newRecorder()
	h.finishErr = errors.New("rename failed")
	rm := &fakeRemover{}
	w := newTestWorker(t, "s1", 20*time.Millisecond, h, rm)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Join(ctxWithTimeout(t, 2*time.Second)); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if rm.count() != 1 {
		t.Fatal("removal must happen even when OnFinish fails")
	}
	if !errors.Is(w.Err(), h.finishErr) {
		t.Fatalf("expected finish error in Err, got %v", w.Err())
	}
}

func TestWorkerJoinHonoursContext(t *testing.T) {
	w := newTestWorker(t, "s1", time.Hour, newRecorder(), nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		w.Terminate()
		_ = w.Join(context.Background())
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Join(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
