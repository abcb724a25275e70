package preflight

import (
	"context"
	"strings"

	"seriesd/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Source directory (always checked)
	results = append(results, CheckReadable("Source directory", cfg.Paths.SourceDir))

	results = append(results, CheckWritable("State directory", cfg.Paths.StateDir))

	if cfg.WritesLocally() {
		results = append(results, CheckWritable("Destination directory", cfg.Paths.DestDir))
	}

	if cfg.Pipeline.Kind == config.PipelineFTP {
		results = append(results, CheckFTP(ctx, cfg.FTPAddress(), cfg.FTPTimeout()))
	}

	return results
}

// Failed returns the failing results.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Summary joins failing results into a single line for error messages.
func Summary(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range Failed(results) {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	return strings.Join(parts, "; ")
}
