package history

import (
	"context"
	"log/slog"
	"time"

	"seriesd/internal/logging"
	"seriesd/internal/series"
)

const recordTimeout = 5 * time.Second

// Recorder writes a ledger row for every finished series. It implements
// series.Observer.
type Recorder struct {
	series.NopObserver

	store    *Store
	pipeline string
	logger   *slog.Logger
}

func NewRecorder(store *Store, pipeline string, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:    store,
		pipeline: pipeline,
		logger:   logging.NewComponentLogger(logger, "history"),
	}
}

func (r *Recorder) WorkerFinished(info series.WorkerInfo, err error) {
	outcome := OutcomeCompleted
	switch {
	case err != nil:
		outcome = OutcomeFailed
	case info.Terminated:
		outcome = OutcomeTerminated
	}
	run := Run{
		RunID:      info.ID,
		Key:        info.Key,
		Pipeline:   r.pipeline,
		Outcome:    outcome,
		Items:      info.Items,
		Failures:   info.Failures,
		StartedAt:  info.StartedAt,
		FinishedAt: time.Now(),
		Terminated: info.Terminated,
	}
	if err != nil {
		run.Error = err.Error()
	}
	r.record(run)
}

func (r *Recorder) WorkerSetupFailed(key string, err error) {
	run := Run{
		Key:        key,
		Pipeline:   r.pipeline,
		Outcome:    OutcomeSetupFailed,
		FinishedAt: time.Now(),
	}
	if err != nil {
		run.Error = err.Error()
	}
	r.record(run)
}

func (r *Recorder) record(run Run) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if _, err := r.store.Record(ctx, run); err != nil {
		logging.WarnWithContext(r.logger, "failed to record series history", "history_record_failed",
			logging.String(logging.FieldSeriesKey, run.Key),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions for history.path"),
			logging.String(logging.FieldImpact, "series is missing from the history ledger"),
		)
	}
}
