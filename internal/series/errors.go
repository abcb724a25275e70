package series

import "errors"

var (
	// ErrInvalidState reports a lifecycle violation such as submitting to a
	// worker that has not started or has already begun finalizing.
	ErrInvalidState = errors.New("series: invalid worker state")

	// ErrFinalizing is returned (wrapped together with ErrInvalidState) when an
	// item reaches a worker that has begun finalizing.
	ErrFinalizing = errors.New("series: worker is finalizing")

	// ErrNotRegistered reports removal of a worker the registry does not track.
	ErrNotRegistered = errors.New("series: worker not registered")

	// ErrStopped is returned by Dispatch once the registry has been stopped.
	ErrStopped = errors.New("series: registry stopped")

	// ErrEmptyKey is returned when the key function yields an empty key.
	ErrEmptyKey = errors.New("series: empty series key")

	// ErrSelfJoin is returned when Join is called from one of the worker's own hooks.
	ErrSelfJoin = errors.New("series: join called from within worker")

	// ErrInvalidConfig reports unusable constructor arguments.
	ErrInvalidConfig = errors.New("series: invalid configuration")

	// ErrTerminateSeries may be wrapped by a handler error to make the worker
	// terminate itself after the failing item.
	ErrTerminateSeries = errors.New("series: terminate requested by handler")
)
