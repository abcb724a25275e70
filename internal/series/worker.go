package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"seriesd/internal/logging"
)

// Remover is notified when a worker has finalized so it can release the
// worker's key. Registry implements it.
type Remover[T any] interface {
	Remove(w *Worker[T]) error
}

// Worker owns the lifecycle of exactly one series.
type Worker[T any] struct {
	name     string
	id       string
	timeout  time.Duration
	handler  Handler[T]
	remover  Remover[T]
	logger   *slog.Logger
	observer Observer

	// monitor serializes handler calls with each other and with the
	// decision to finalize.
	monitor sync.Mutex

	mu           sync.Mutex
	state        State
	startedAt    time.Time
	lastActivity time.Time
	items        int
	failures     int
	terminated   bool
	err          error

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewWorker constructs an unstarted worker. remover may be nil for a worker
// that is not tracked by a registry.
func NewWorker[T any](name string, timeout time.Duration, handler Handler[T], remover Remover[T], opts ...Option) (*Worker[T], error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: worker name is required", ErrInvalidConfig)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: idle timeout must be positive, got %s", ErrInvalidConfig, timeout)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: handler is required", ErrInvalidConfig)
	}

	o := buildOptions(opts)
	id := strings.TrimSpace(o.id)
	if id == "" {
		id = uuid.NewString()
	}

	return &Worker[T]{
		name:     name,
		id:       id,
		timeout:  timeout,
		handler:  handler,
		remover:  remover,
		observer: o.observer,
		logger: o.logger.With(
			logging.String(logging.FieldSeriesKey, name),
			logging.String(logging.FieldWorkerID, id),
		),
		state: StateCreated,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}, nil
}

// Name returns the series key the worker was created for.
func (w *Worker[T]) Name() string { return w.name }

// ID returns the unique run id of this worker.
func (w *Worker[T]) ID() string { return w.id }

// Timeout returns the idle duration after which the series is finalized.
func (w *Worker[T]) Timeout() time.Duration { return w.timeout }

// State returns the current lifecycle state.
func (w *Worker[T]) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Info returns a snapshot of the worker.
func (w *Worker[T]) Info() WorkerInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.infoLocked()
}

// Done is closed once the worker has finished (or failed to start).
func (w *Worker[T]) Done() <-chan struct{} { return w.done }

// Err returns the setup, finalize, or removal error once Done is closed.
func (w *Worker[T]) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Start runs OnStart synchronously and then launches the idle loop. A failed
// OnStart leaves the worker terminated.
func (w *Worker[T]) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	w.monitor.Lock()
	defer w.monitor.Unlock()

	w.mu.Lock()
	if w.state != StateCreated {
		state := w.state
		w.mu.Unlock()
		return fmt.Errorf("%w: start series %s while %s", ErrInvalidState, w.name, state)
	}
	w.mu.Unlock()

	select {
	case <-w.stop:
		w.mu.Lock()
		w.state = StateTerminated
		w.terminated = true
		w.mu.Unlock()
		close(w.done)
		return fmt.Errorf("%w: series %s terminated before start", ErrInvalidState, w.name)
	default:
	}

	w.logger.Debug("series worker starting",
		logging.String(logging.FieldEventType, "series_worker_starting"),
		logging.Duration("timeout", w.timeout),
	)
	if err := w.handler.OnStart(w.hookContext(ctx)); err != nil {
		w.mu.Lock()
		w.state = StateTerminated
		w.err = err
		w.mu.Unlock()
		close(w.done)
		return fmt.Errorf("start series %s: %w", w.name, err)
	}

	now := time.Now()
	w.mu.Lock()
	w.state = StateWaiting
	w.startedAt = now
	w.lastActivity = now
	info := w.infoLocked()
	w.mu.Unlock()

	w.observer.WorkerStarted(info)
	w.logger.Info("waiting for series items",
		logging.String(logging.FieldEventType, "series_worker_started"),
		logging.Duration("timeout", w.timeout),
	)

	go w.run(context.WithoutCancel(ctx))
	return nil
}

// Submit hands one item to the series. OnHandle runs on the calling goroutine
// under the worker's monitor, and the idle clock restarts when it returns.
func (w *Worker[T]) Submit(ctx context.Context, item T) error {
	if ctx == nil {
		ctx = context.Background()
	}
	w.mu.Lock()
	if !w.state.accepting() {
		err := w.stateErrorLocked()
		w.mu.Unlock()
		return err
	}
	w.mu.Unlock()

	w.monitor.Lock()
	defer w.monitor.Unlock()

	w.mu.Lock()
	if !w.state.accepting() {
		err := w.stateErrorLocked()
		w.mu.Unlock()
		return err
	}
	w.state = StateRunning
	w.mu.Unlock()

	began := time.Now()
	err := w.handler.OnHandle(w.hookContext(ctx), item)
	elapsed := time.Since(began)

	w.mu.Lock()
	w.state = StateWaiting
	w.lastActivity = time.Now()
	w.items++
	if err != nil {
		w.failures++
	}
	info := w.infoLocked()
	w.mu.Unlock()

	w.observer.ItemHandled(info, elapsed, err)
	if err == nil {
		return nil
	}

	w.logger.Warn("series item handling failed; series continues",
		logging.Error(err),
		logging.String(logging.FieldEventType, "series_item_failed"),
		logging.String(logging.FieldErrorHint, "inspect the item and pipeline destination"),
		logging.String(logging.FieldImpact, "item was not processed"),
	)
	if errors.Is(err, ErrTerminateSeries) {
		w.Terminate()
	}
	return fmt.Errorf("handle item for series %s: %w", w.name, err)
}

// Terminate requests immediate finalization. It never blocks and may be
// called any number of times, concurrently with natural expiry.
func (w *Worker[T]) Terminate() {
	w.stopOnce.Do(func() {
		w.logger.Info("series worker termination requested",
			logging.String(logging.FieldEventType, "series_worker_terminate"),
		)
		close(w.stop)
	})
}

// Join blocks until the worker has finalized or ctx ends.
func (w *Worker[T]) Join(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if hookWorker(ctx) == any(w) {
		return fmt.Errorf("%w: series %s", ErrSelfJoin, w.name)
	}
	w.mu.Lock()
	state := w.state
	w.mu.Unlock()
	if state == StateCreated {
		select {
		case <-w.done:
			return nil
		default:
		}
		return fmt.Errorf("%w: join series %s before start", ErrInvalidState, w.name)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker[T]) run(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			w.monitor.Lock()
			w.mu.Lock()
			w.state = StateFinalizing
			w.terminated = true
			w.mu.Unlock()
			w.monitor.Unlock()
			w.finalize(ctx)
			return
		case <-timer.C:
			w.monitor.Lock()
			w.mu.Lock()
			idle := time.Since(w.lastActivity)
			if idle < w.timeout {
				w.mu.Unlock()
				w.monitor.Unlock()
				timer.Reset(w.timeout - idle)
				continue
			}
			w.state = StateFinalizing
			w.mu.Unlock()
			w.monitor.Unlock()
			w.finalize(ctx)
			return
		}
	}
}

func (w *Worker[T]) finalize(ctx context.Context) {
	w.logger.Debug("series worker finishing",
		logging.String(logging.FieldEventType, "series_worker_finishing"),
	)

	finishErr := w.handler.OnFinish(w.hookContext(ctx))
	if finishErr != nil {
		w.logger.Error("series finalize failed",
			logging.Error(finishErr),
			logging.String(logging.FieldEventType, "series_finish_failed"),
			logging.String(logging.FieldErrorHint, "check the pipeline destination; the series slot is released anyway"),
		)
		finishErr = fmt.Errorf("finish series %s: %w", w.name, finishErr)
	}

	var removeErr error
	if w.remover != nil {
		if removeErr = w.remover.Remove(w); removeErr != nil {
			w.logger.Error("series worker removal failed",
				logging.Error(removeErr),
				logging.String(logging.FieldEventType, "series_remove_failed"),
				logging.String(logging.FieldErrorHint, "registry bookkeeping is inconsistent; report this as a bug"),
			)
		}
	}

	w.mu.Lock()
	w.state = StateTerminated
	w.err = errors.Join(finishErr, removeErr)
	err := w.err
	info := w.infoLocked()
	w.mu.Unlock()

	w.observer.WorkerFinished(info, err)
	w.logger.Info("series finished",
		logging.String(logging.FieldEventType, "series_worker_finished"),
		logging.Int("items", info.Items),
		logging.Int("failures", info.Failures),
		logging.Bool("terminated", info.Terminated),
		logging.Duration("elapsed", time.Since(info.StartedAt)),
	)
}

func (w *Worker[T]) hookContext(ctx context.Context) context.Context {
	return withHookScope(ctx, w, w.name, w.id)
}

func (w *Worker[T]) stateErrorLocked() error {
	switch w.state {
	case StateCreated:
		return fmt.Errorf("%w: series %s not started", ErrInvalidState, w.name)
	case StateFinalizing, StateTerminated:
		return fmt.Errorf("%w: %w: series %s is %s", ErrInvalidState, ErrFinalizing, w.name, w.state)
	default:
		return fmt.Errorf("%w: series %s is %s", ErrInvalidState, w.name, w.state)
	}
}

func (w *Worker[T]) infoLocked() WorkerInfo {
	return WorkerInfo{
		Key:          w.name,
		ID:           w.id,
		State:        w.state,
		StateName:    w.state.String(),
		Timeout:      w.timeout,
		StartedAt:    w.startedAt,
		LastActivity: w.lastActivity,
		Items:        w.items,
		Failures:     w.failures,
		Terminated:   w.terminated,
	}
}
