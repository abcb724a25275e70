package series

import (
	"log/slog"

	"seriesd/internal/logging"
)

// Option configures a Registry or Worker.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	observer Observer
	id       string
}

// WithLogger sets the logger used for lifecycle diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithObserver sets the observer notified of lifecycle events.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithWorkerID overrides the generated worker run id.
func WithWorkerID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}
	return o
}
