// Package logging assembles the structured slog loggers used across seriesd.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// attribute helpers and field names that keep log lines from the registry,
// workers, pipelines and item sources in one shape. A no-op logger is provided
// for tests and for components constructed without one.
package logging
