package series

import "context"

type hookContextKey struct{}

type hookScope struct {
	worker any
	key    string
	id     string
}

func withHookScope(ctx context.Context, worker any, key, id string) context.Context {
	return context.WithValue(ctx, hookContextKey{}, hookScope{worker: worker, key: key, id: id})
}

func hookWorker(ctx context.Context) any {
	if ctx == nil {
		return nil
	}
	scope, ok := ctx.Value(hookContextKey{}).(hookScope)
	if !ok {
		return nil
	}
	return scope.worker
}

// KeyFromContext returns the series key when ctx was passed to a handler hook.
func KeyFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	scope, ok := ctx.Value(hookContextKey{}).(hookScope)
	if !ok {
		return "", false
	}
	return scope.key, true
}

// WorkerIDFromContext returns the worker run id when ctx was passed to a handler hook.
func WorkerIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	scope, ok := ctx.Value(hookContextKey{}).(hookScope)
	if !ok || scope.id == "" {
		return "", false
	}
	return scope.id, true
}
