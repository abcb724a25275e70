package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"seriesd/internal/config"
	"seriesd/internal/item"
	"seriesd/internal/logging"
	"seriesd/internal/series"
)

// Options configures New.
type Options struct {
	Config *config.Config
	// Key derives the series key of an item. Required.
	Key    series.KeyFunc[item.Item]
	Logger *slog.Logger
	// Dial overrides how the ftp pipeline connects. Nil uses the real client.
	Dial Dialer
}

// Pipeline builds per-series handlers for one configured kind.
type Pipeline struct {
	kind    string
	key     series.KeyFunc[item.Item]
	timeout time.Duration
	logger  *slog.Logger
	build   func(key string, logger *slog.Logger) series.Handler[item.Item]
}

// New returns the pipeline selected by cfg.Pipeline.Kind.
func New(opts Options) (*Pipeline, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("pipeline: config is required")
	}
	if opts.Key == nil {
		return nil, fmt.Errorf("pipeline: key function is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	p := &Pipeline{
		kind:    cfg.Pipeline.Kind,
		key:     opts.Key,
		timeout: cfg.IdleTimeout(),
		logger:  logging.NewComponentLogger(logger, "pipeline").With(logging.String(logging.FieldPipeline, cfg.Pipeline.Kind)),
	}

	switch cfg.Pipeline.Kind {
	case config.PipelineLog:
		p.build = func(key string, logger *slog.Logger) series.Handler[item.Item] {
			return newLogHandler(key, logger)
		}
	case config.PipelineCopy:
		dest := cfg.Paths.DestDir
		p.build = func(key string, logger *slog.Logger) series.Handler[item.Item] {
			return newCopyHandler(dest, key, logger)
		}
	case config.PipelineSort:
		dest := cfg.Paths.DestDir
		p.build = func(key string, logger *slog.Logger) series.Handler[item.Item] {
			return newSortHandler(dest, key, logger)
		}
	case config.PipelineFTP:
		target := newFTPTarget(cfg, opts.Dial)
		p.build = func(key string, logger *slog.Logger) series.Handler[item.Item] {
			return newFTPHandler(target, key, logger)
		}
	default:
		return nil, fmt.Errorf("pipeline: unsupported kind %q", cfg.Pipeline.Kind)
	}
	return p, nil
}

// Name returns the pipeline kind.
func (p *Pipeline) Name() string { return p.kind }

// Timeout returns the idle timeout given to every series worker.
func (p *Pipeline) Timeout() time.Duration { return p.timeout }

// Factory returns a series.Factory that opens a worker for the item's key.
func (p *Pipeline) Factory() series.Factory[item.Item] {
	return func(it item.Item, reg *series.Registry[item.Item]) (*series.Worker[item.Item], error) {
		key := p.key(it)
		logger := p.logger.With(logging.String(logging.FieldSeriesKey, key))
		logger.Debug("building series handler", logging.String(logging.FieldPath, it.Path))
		return reg.NewWorker(key, p.timeout, p.build(key, logger))
	}
}

// Handler returns the handler the pipeline would use for key. It is exposed
// for callers that drive a worker without a registry.
func (p *Pipeline) Handler(key string) series.Handler[item.Item] {
	return p.build(key, p.logger.With(logging.String(logging.FieldSeriesKey, key)))
}

// tally tracks what a series handler has processed.
type tally struct {
	items int
	bytes int64
	first string
	last  string
}

func (t *tally) add(it item.Item) {
	t.items++
	t.bytes += it.Size
	if t.first == "" {
		t.first = it.Meta.InstanceNumber
	}
	t.last = it.Meta.InstanceNumber
}

func (t *tally) attrs() []any {
	return logging.Args(
		logging.Int("items", t.items),
		logging.Int64("bytes", t.bytes),
		logging.String("first_instance", t.first),
		logging.String("last_instance", t.last),
	)
}
