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

// copyHandler copies items into a hidden work directory and publishes it
// under the series name on finish.
type copyHandler struct {
	tempDir  string
	finalDir string
	logger   *slog.Logger
	tally    tally
}

func newCopyHandler(dest, key string, logger *slog.Logger) *copyHandler {
	name := item.SafeName(key)
	return &copyHandler{
		tempDir:  filepath.Join(dest, "."+name),
		finalDir: filepath.Join(dest, name),
		logger:   logger,
	}
}

func (h *copyHandler) OnStart(context.Context) error {
	if fileutil.DirExists(h.tempDir) {
		logging.WarnWithContext(h.logger, "work directory already exists; reusing it", "copy_workdir_exists",
			logging.String("dir", h.tempDir),
			logging.String(logging.FieldErrorHint, "a previous run stopped before publishing this series"),
			logging.String(logging.FieldImpact, "files from the earlier run will be published with this series"),
		)
		return nil
	}
	if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	h.logger.Info("created series work directory", logging.String("dir", h.tempDir))
	return nil
}

func (h *copyHandler) OnHandle(_ context.Context, it item.Item) error {
	dst, err := fileutil.CopyIntoDir(it.Path, h.tempDir)
	if err != nil {
		return err
	}
	h.tally.add(it)
	h.logger.Debug("copied series item", logging.String(logging.FieldPath, it.Path), logging.String("dest", dst))
	return nil
}

func (h *copyHandler) OnFinish(context.Context) error {
	if !fileutil.DirExists(h.finalDir) {
		if err := os.Rename(h.tempDir, h.finalDir); err != nil {
			return fmt.Errorf("publish series directory: %w", err)
		}
		h.logger.Info("published series", append(h.tally.attrs(), logging.String("dir", h.finalDir))...)
		return nil
	}

	// The key was seen before and already published; merge into it.
	entries, err := os.ReadDir(h.tempDir)
	if err != nil {
		return fmt.Errorf("read work directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := fileutil.MoveFile(filepath.Join(h.tempDir, entry.Name()), filepath.Join(h.finalDir, entry.Name())); err != nil {
			return fmt.Errorf("merge into published series: %w", err)
		}
	}
	if err := os.Remove(h.tempDir); err != nil {
		return fmt.Errorf("remove work directory: %w", err)
	}
	h.logger.Info("merged series into existing directory", append(h.tally.attrs(), logging.String("dir", h.finalDir))...)
	return nil
}
