package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"seriesd/internal/fileutil"
	"seriesd/internal/item"
	"seriesd/internal/logging"
)

// sortHandler moves items into <dest>/<name> as they arrive.
type sortHandler struct {
	dir    string
	logger *slog.Logger
	tally  tally
}

func newSortHandler(dest, key string, logger *slog.Logger) *sortHandler {
	return &sortHandler{dir: filepath.Join(dest, item.SafeName(key)), logger: logger}
}

func (h *sortHandler) OnStart(context.Context) error {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("create series directory: %w", err)
	}
	h.logger.Info("sorting series", logging.String("dir", h.dir))
	return nil
}

func (h *sortHandler) OnHandle(_ context.Context, it item.Item) error {
	if _, err := fileutil.MoveIntoDir(it.Path, h.dir); err != nil {
		return err
	}
	h.tally.add(it)
	h.logger.Debug("sorted series item", logging.String(logging.FieldPath, it.Path))
	return nil
}

func (h *sortHandler) OnFinish(context.Context) error {
	h.logger.Info("series sorted", append(h.tally.attrs(), logging.String("dir", h.dir))...)
	return nil
}
