package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"seriesd/internal/config"
	"seriesd/internal/history"
	"seriesd/internal/item"
	"seriesd/internal/logging"
	"seriesd/internal/metrics"
	"seriesd/internal/pipeline"
	"seriesd/internal/preflight"
	"seriesd/internal/series"
	"seriesd/internal/source"
)

// stopTimeout bounds how long shutdown waits for terminated series to run
// their finish hooks.
const stopTimeout = 2 * time.Minute

// Options configures New.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// Dial overrides how the ftp pipeline connects. Nil uses the real client.
	Dial pipeline.Dialer
	// SkipPreflight disables the startup readiness checks.
	SkipPreflight bool
}

// Daemon routes files from the source directory into per-series workers.
type Daemon struct {
	cfg      *config.Config
	root     *slog.Logger
	logger   *slog.Logger
	decoder  item.Decoder
	keys     *item.KeyFormat
	pipeline *pipeline.Pipeline
	registry *series.Registry[item.Item]
	filter   *source.Filter
	metrics  *metrics.Metrics
	history  *history.Store

	skipPreflight bool

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	ingested  atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	apiAddr   atomic.Value
	closeOnce sync.Once

	mu        sync.Mutex
	startedAt time.Time
	watcher   *source.Watcher
	preflight []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	PID            int
	Mode           string
	Pipeline       string
	SourceDir      string
	DestDir        string
	KeyFormat      string
	IdleTimeout    time.Duration
	StartedAt      time.Time
	ActiveSeries   int
	PendingFiles   int
	Ingested       int64
	Skipped        int64
	Failed         int64
	Metrics        metrics.Snapshot
	LockFilePath   string
	HistoryPath    string
	Preflight      []preflight.Result
	RegistryClosed bool
}

// New constructs a daemon with initialized dependencies. The history ledger is
// opened here so a bad path fails before any file is touched.
func New(opts Options) (*Daemon, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("daemon requires a config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldSessionID, uuid.NewString()))

	keys, err := item.ParseKeyFormat(cfg.Series.KeyFormat)
	if err != nil {
		return nil, err
	}

	var decoder item.Decoder
	switch cfg.Series.Decoder {
	case config.DecoderDICOM:
		decoder = item.NewDICOMDecoder(cfg.Paths.SourceDir)
	case config.DecoderDirectory:
		decoder = item.NewDirectoryDecoder(cfg.Paths.SourceDir)
	default:
		return nil, fmt.Errorf("unsupported decoder %q", cfg.Series.Decoder)
	}

	filter, err := source.NewFilter(cfg.Paths.SourceDir, cfg.Source.Include, cfg.Source.Exclude)
	if err != nil {
		return nil, err
	}

	pipe, err := pipeline.New(pipeline.Options{
		Config: cfg,
		Key:    keys.Key,
		Logger: logger,
		Dial:   opts.Dial,
	})
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:           cfg,
		root:          logger,
		logger:        logging.NewComponentLogger(logger, "daemon"),
		decoder:       decoder,
		keys:          keys,
		pipeline:      pipe,
		filter:        filter,
		metrics:       metrics.New(pipe.Name()),
		skipPreflight: opts.SkipPreflight,
		lockPath:      cfg.LockPath(),
		lock:          flock.New(cfg.LockPath()),
	}

	observers := []series.Observer{d.metrics}
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		d.history = store
		observers = append(observers, history.NewRecorder(store, pipe.Name(), logger))
	}

	d.registry, err = series.NewRegistry[item.Item](keys.Key, pipe.Factory(),
		series.WithLogger(logger),
		series.WithObserver(series.Observers(observers...)),
	)
	if err != nil {
		_ = d.history.Close()
		return nil, err
	}
	return d, nil
}

// Run acquires the instance lock and feeds the registry until ctx ends (watch
// mode) or the source tree has been walked and every series has finished
// (walk mode). All series are finalized before Run returns, so a daemon runs
// at most once.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another seriesd instance is already using %s", d.cfg.Paths.StateDir)
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock",
				logging.Error(err),
				logging.String(logging.FieldEventType, "lock_release_failed"),
				logging.String(logging.FieldImpact, "stale lock file may remain"),
			)
		}
	}()

	if !d.skipPreflight {
		results := preflight.RunAll(ctx, d.cfg)
		d.mu.Lock()
		d.preflight = results
		d.mu.Unlock()
		if failed := preflight.Failed(results); len(failed) > 0 {
			return fmt.Errorf("preflight failed: %s", preflight.Summary(results))
		}
	}

	d.mu.Lock()
	d.startedAt = time.Now()
	d.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv, err := newAPIServer(d.cfg, d, d.root)
	if err != nil {
		return err
	}
	if err := srv.start(runCtx); err != nil {
		return err
	}
	defer srv.stop()

	d.logger.Info("seriesd started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("mode", d.cfg.Source.Mode),
		logging.String(logging.FieldPipeline, d.pipeline.Name()),
		logging.String("source", d.cfg.Paths.SourceDir),
		logging.String("key_format", d.keys.String()),
		logging.Duration("idle_timeout", d.pipeline.Timeout()),
		logging.String("lock", d.lockPath),
	)

	var runErr error
	switch d.cfg.Source.Mode {
	case config.ModeWalk:
		runErr = d.runWalk(runCtx)
	default:
		runErr = d.runWatch(runCtx)
	}

	stopErr := d.stopRegistry()
	snap := d.metrics.Snapshot()
	d.logger.Info("seriesd stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
		logging.Int64("ingested", d.ingested.Load()),
		logging.Int64("skipped", d.skipped.Load()),
		logging.Int64("failed", d.failed.Load()),
		logging.Int64("series_finished", snap.FinishedSeries),
	)
	return errors.Join(runErr, stopErr)
}

func (d *Daemon) runWalk(ctx context.Context) error {
	walker := source.NewWalker(d.filter, d.cfg.Source.FollowSymlinks, d.logger)
	stats, walkErr := walker.Walk(ctx, d.sink)
	if walkErr != nil && ctx.Err() != nil {
		walkErr = nil
	}
	d.logger.Info("source walk complete",
		logging.String(logging.FieldEventType, "walk_complete"),
		logging.Int64("files", stats.Files),
		logging.Int64("skipped", stats.Skipped),
		logging.Int64("errors", stats.Errors),
		logging.Duration("elapsed", stats.Elapsed),
		logging.Float64("files_per_second", stats.FilesPerSecond()),
	)

	drainCtx, cancel := context.WithTimeout(ctx, d.cfg.DrainTimeout())
	defer cancel()
	if err := d.registry.Drain(drainCtx); err != nil {
		logging.WarnWithContext(d.logger, "series still open after drain timeout; terminating", "drain_incomplete",
			logging.Error(err),
			logging.Int("active_series", d.registry.Len()),
			logging.String(logging.FieldErrorHint, "raise series.drain_timeout or lower series.idle_timeout"),
			logging.String(logging.FieldImpact, "remaining series are finalized early"),
		)
	}
	return walkErr
}

func (d *Daemon) runWatch(ctx context.Context) error {
	watcher := source.NewWatcher(d.filter, d.cfg.SettleDelay(), d.logger)
	d.mu.Lock()
	d.watcher = watcher
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.watcher = nil
		d.mu.Unlock()
	}()
	if err := watcher.Run(ctx, d.sink); err != nil {
		return fmt.Errorf("watch source: %w", err)
	}
	return nil
}

func (d *Daemon) stopRegistry() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := d.registry.Stop(ctx); err != nil {
		return fmt.Errorf("stop series registry: %w", err)
	}
	return nil
}

func (d *Daemon) sink(ctx context.Context, path string) {
	if err := d.Ingest(ctx, path); err != nil {
		hint := "inspect the file and the pipeline destination"
		switch {
		case errors.Is(err, series.ErrEmptyKey):
			hint = "check series.key_format against the file metadata"
		case errors.Is(err, series.ErrStopped), errors.Is(err, context.Canceled):
			return
		}
		logging.WarnWithContext(d.logger, "file not processed", "ingest_failed",
			logging.String(logging.FieldPath, path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hint),
			logging.String(logging.FieldImpact, "file is not part of any series output"),
		)
	}
}

// Ingest decodes one file and dispatches it to its series. Files that are not
// series items are skipped without error.
func (d *Daemon) Ingest(ctx context.Context, path string) error {
	it, err := d.decoder.Decode(ctx, path)
	if err != nil {
		if errors.Is(err, item.ErrNotSeriesItem) {
			d.skipped.Add(1)
			d.logger.Debug("skipping file that is not a series item",
				logging.String(logging.FieldPath, path),
				logging.String("reason", err.Error()),
			)
			return nil
		}
		d.failed.Add(1)
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if err := d.registry.Dispatch(ctx, it); err != nil {
		d.failed.Add(1)
		return fmt.Errorf("dispatch %s: %w", path, err)
	}
	d.ingested.Add(1)
	return nil
}

// Series returns a snapshot of every open series.
func (d *Daemon) Series() []series.WorkerInfo {
	return d.registry.Snapshot()
}

// History returns recent ledger rows, or nil when the ledger is disabled.
func (d *Daemon) History(ctx context.Context, limit int) ([]history.Run, error) {
	if d.history == nil {
		return nil, nil
	}
	return d.history.List(ctx, limit)
}

// Metrics returns the daemon's collectors.
func (d *Daemon) Metrics() *metrics.Metrics { return d.metrics }

// APIAddress returns the address the status API is listening on, if any.
func (d *Daemon) APIAddress() string {
	addr, _ := d.apiAddr.Load().(string)
	return addr
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	startedAt := d.startedAt
	watcher := d.watcher
	checks := append([]preflight.Result(nil), d.preflight...)
	d.mu.Unlock()

	pending := 0
	if watcher != nil {
		pending = watcher.Pending()
	}
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		Mode:           d.cfg.Source.Mode,
		Pipeline:       d.pipeline.Name(),
		SourceDir:      d.cfg.Paths.SourceDir,
		KeyFormat:      d.keys.String(),
		IdleTimeout:    d.pipeline.Timeout(),
		StartedAt:      startedAt,
		ActiveSeries:   d.registry.Len(),
		PendingFiles:   pending,
		Ingested:       d.ingested.Load(),
		Skipped:        d.skipped.Load(),
		Failed:         d.failed.Load(),
		Metrics:        d.metrics.Snapshot(),
		LockFilePath:   d.lockPath,
		Preflight:      checks,
		RegistryClosed: d.registry.Closed(),
	}
	if d.cfg.WritesLocally() {
		status.DestDir = d.cfg.Paths.DestDir
	}
	if d.history != nil {
		status.HistoryPath = d.history.Path()
	}
	return status
}

// Close releases resources held by the daemon. It must not be called while
// Run is active.
func (d *Daemon) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.history != nil {
			err = d.history.Close()
		}
	})
	return err
}
