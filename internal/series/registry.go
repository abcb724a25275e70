package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"seriesd/internal/logging"
)

// maxDispatchAttempts bounds how often Dispatch retries after finding a
// worker that had already begun finalizing.
const maxDispatchAttempts = 3

// KeyFunc derives the series key of an item. It must be pure.
type KeyFunc[T any] func(item T) string

// Factory builds an unstarted worker for the first item of a new series. The
// returned worker must be named after the key and bound to reg, which
// Registry.NewWorker takes care of.
type Factory[T any] func(item T, reg *Registry[T]) (*Worker[T], error)

type slot[T any] struct {
	ready  chan struct{}
	worker *Worker[T]
	err    error
}

// Registry routes items to one worker per series key.
type Registry[T any] struct {
	keyFn    KeyFunc[T]
	factory  Factory[T]
	logger   *slog.Logger
	observer Observer
	opts     []Option

	mu       sync.Mutex
	slots    map[string]*slot[T]
	closed   bool
	creating sync.WaitGroup
}

// NewRegistry constructs a registry from a key function and a worker factory.
func NewRegistry[T any](keyFn KeyFunc[T], factory Factory[T], opts ...Option) (*Registry[T], error) {
	if keyFn == nil {
		return nil, fmt.Errorf("%w: key function is required", ErrInvalidConfig)
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: worker factory is required", ErrInvalidConfig)
	}
	o := buildOptions(opts)
	return &Registry[T]{
		keyFn:    keyFn,
		factory:  factory,
		logger:   logging.NewComponentLogger(o.logger, "series-registry"),
		observer: o.observer,
		opts:     []Option{WithLogger(o.logger), WithObserver(o.observer)},
		slots:    make(map[string]*slot[T]),
	}, nil
}

// NewWorker builds a worker bound to this registry that inherits its logger
// and observer. Factories should use it rather than calling NewWorker directly.
func (r *Registry[T]) NewWorker(name string, timeout time.Duration, handler Handler[T], opts ...Option) (*Worker[T], error) {
	merged := make([]Option, 0, len(r.opts)+len(opts))
	merged = append(merged, r.opts...)
	merged = append(merged, opts...)
	return NewWorker[T](name, timeout, handler, r, merged...)
}

// Dispatch routes item to the worker for its key, creating and starting one
// when the key is new. After Stop it returns ErrStopped without side effects.
func (r *Registry[T]) Dispatch(ctx context.Context, item T) error {
	if ctx == nil {
		ctx = context.Background()
	}
	key := r.keyFn(item)
	if key == "" {
		r.observer.DispatchRejected(key, ErrEmptyKey)
		return ErrEmptyKey
	}

	var err error
	for attempt := 1; attempt <= maxDispatchAttempts; attempt++ {
		var w *Worker[T]
		w, err = r.acquire(ctx, key, item)
		if err != nil {
			return err
		}
		err = w.Submit(ctx, item)
		if !errors.Is(err, ErrFinalizing) {
			return err
		}

		r.logger.Debug("series worker finalizing; waiting to reopen key",
			logging.String(logging.FieldSeriesKey, key),
			logging.Int("attempt", attempt),
		)
		select {
		case <-w.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (r *Registry[T]) acquire(ctx context.Context, key string, item T) (*Worker[T], error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Debug("dispatch rejected; registry stopped",
			logging.String(logging.FieldSeriesKey, key),
			logging.String(logging.FieldEventType, "dispatch_rejected"),
		)
		r.observer.DispatchRejected(key, ErrStopped)
		return nil, ErrStopped
	}
	if s, ok := r.slots[key]; ok {
		r.mu.Unlock()
		select {
		case <-s.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if s.err != nil {
			return nil, fmt.Errorf("start series %s: %w", key, s.err)
		}
		return s.worker, nil
	}

	s := &slot[T]{ready: make(chan struct{})}
	r.slots[key] = s
	r.creating.Add(1)
	r.mu.Unlock()
	defer r.creating.Done()

	w, err := r.create(ctx, key, item, s)

	r.mu.Lock()
	if err != nil {
		if r.slots[key] == s {
			delete(r.slots, key)
		}
		s.err = err
	}
	close(s.ready)
	r.mu.Unlock()

	if err != nil {
		r.observer.WorkerSetupFailed(key, err)
		return nil, err
	}
	return w, nil
}

func (r *Registry[T]) create(ctx context.Context, key string, item T, s *slot[T]) (*Worker[T], error) {
	w, err := r.factory(item, r)
	if err != nil {
		return nil, fmt.Errorf("build series %s: %w", key, err)
	}
	if w == nil {
		return nil, fmt.Errorf("%w: factory returned no worker for series %s", ErrInvalidConfig, key)
	}
	if w.Name() != key {
		return nil, fmt.Errorf("%w: factory built worker %q for series %q", ErrInvalidConfig, w.Name(), key)
	}
	if w.remover != Remover[T](r) {
		return nil, fmt.Errorf("%w: worker for series %s is not bound to this registry", ErrInvalidConfig, key)
	}

	// Record the worker before it starts so a worker that finalizes
	// immediately can still remove itself.
	r.mu.Lock()
	s.worker = w
	r.mu.Unlock()

	r.logger.Debug("setting up series worker",
		logging.String(logging.FieldSeriesKey, key),
		logging.String(logging.FieldWorkerID, w.ID()),
	)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Remove releases the key held by w. Removing a worker that is not tracked is
// an invariant violation and returns ErrNotRegistered.
func (r *Registry[T]) Remove(w *Worker[T]) error {
	if w == nil {
		return fmt.Errorf("%w: nil worker", ErrNotRegistered)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[w.Name()]
	if !ok || s.worker != w {
		return fmt.Errorf("%w: series %s (worker %s)", ErrNotRegistered, w.Name(), w.ID())
	}
	delete(r.slots, w.Name())
	r.logger.Debug("removed series worker",
		logging.String(logging.FieldSeriesKey, w.Name()),
		logging.String(logging.FieldWorkerID, w.ID()),
	)
	return nil
}

// Drain waits for every tracked worker to finish on its own idle timeout.
// Workers created while draining are waited for as well.
func (r *Registry[T]) Drain(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	joined := make(map[*Worker[T]]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pending := 0
		for _, w := range r.workers(ctx) {
			if _, ok := joined[w]; ok {
				continue
			}
			pending++
			if err := w.Join(ctx); err != nil {
				return err
			}
			joined[w] = struct{}{}
		}
		if pending == 0 {
			return ctx.Err()
		}
	}
}

// Stop rejects further dispatches, terminates every tracked worker and waits
// for them to finish. Calling Stop again is harmless.
func (r *Registry[T]) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r.mu.Lock()
	alreadyClosed := r.closed
	r.closed = true
	r.mu.Unlock()
	if !alreadyClosed {
		r.logger.Info("stopping series registry",
			logging.String(logging.FieldEventType, "series_registry_stopping"),
			logging.Int("active_series", r.Len()),
		)
	}

	r.creating.Wait()

	workers := r.workers(ctx)
	for _, w := range workers {
		w.Terminate()
	}
	var errs []error
	for _, w := range workers {
		if err := w.Join(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Closed reports whether Stop has been called.
func (r *Registry[T]) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Len returns the number of tracked series, including ones still starting.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Snapshot returns info for every started worker, ordered by key.
func (r *Registry[T]) Snapshot() []WorkerInfo {
	r.mu.Lock()
	workers := make([]*Worker[T], 0, len(r.slots))
	for _, s := range r.slots {
		if s.worker != nil {
			workers = append(workers, s.worker)
		}
	}
	r.mu.Unlock()

	infos := make([]WorkerInfo, 0, len(workers))
	for _, w := range workers {
		infos = append(infos, w.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

// workers waits for pending slots and returns the started workers.
func (r *Registry[T]) workers(ctx context.Context) []*Worker[T] {
	r.mu.Lock()
	slots := make([]*slot[T], 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	r.mu.Unlock()

	workers := make([]*Worker[T], 0, len(slots))
	for _, s := range slots {
		select {
		case <-s.ready:
		case <-ctx.Done():
			return workers
		}
		if s.err == nil && s.worker != nil {
			workers = append(workers, s.worker)
		}
	}
	return workers
}
