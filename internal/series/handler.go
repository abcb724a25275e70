package series

import "context"

// Handler supplies the series-specific behavior of a Worker. The worker's
// timing and locking discipline is identical for every Handler.
//
// OnStart runs synchronously inside Worker.Start before any item is accepted.
// OnHandle runs once per submitted item, never concurrently for one worker.
// OnFinish runs exactly once when the series is finalized.
type Handler[T any] interface {
	OnStart(ctx context.Context) error
	OnHandle(ctx context.Context, item T) error
	OnFinish(ctx context.Context) error
}

// HandlerFuncs adapts three optional functions to the Handler interface.
type HandlerFuncs[T any] struct {
	Start  func(ctx context.Context) error
	Handle func(ctx context.Context, item T) error
	Finish func(ctx context.Context) error
}

func (h HandlerFuncs[T]) OnStart(ctx context.Context) error {
	if h.Start == nil {
		return nil
	}
	return h.Start(ctx)
}

func (h HandlerFuncs[T]) OnHandle(ctx context.Context, item T) error {
	if h.Handle == nil {
		return nil
	}
	return h.Handle(ctx, item)
}

func (h HandlerFuncs[T]) OnFinish(ctx context.Context) error {
	if h.Finish == nil {
		return nil
	}
	return h.Finish(ctx)
}
