package pipeline

import (
	"context"
	"log/slog"
	"time"

	"seriesd/internal/item"
	"seriesd/internal/logging"
)

type logHandler struct {
	key     string
	logger  *slog.Logger
	started time.Time
	tally   tally
}

func newLogHandler(key string, logger *slog.Logger) *logHandler {
	return &logHandler{key: key, logger: logger}
}

func (h *logHandler) OnStart(context.Context) error {
	h.started = time.Now()
	h.logger.Info("series opened", logging.String(logging.FieldEventType, "series_opened"))
	return nil
}

func (h *logHandler) OnHandle(_ context.Context, it item.Item) error {
	h.tally.add(it)
	h.logger.Info("series item",
		logging.String(logging.FieldPath, it.Path),
		logging.String("instance", it.Meta.InstanceNumber),
		logging.String("description", it.Meta.SeriesDescription),
		logging.Int64("size", it.Size),
	)
	return nil
}

func (h *logHandler) OnFinish(context.Context) error {
	args := append(h.tally.attrs(),
		logging.String(logging.FieldEventType, "series_summary"),
		logging.Duration("open_for", time.Since(h.started)),
	)
	h.logger.Info("series summary", args...)
	return nil
}
