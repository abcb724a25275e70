// Package daemon coordinates the long-running seriesd process.
//
// It wires configuration, the item decoder and key format, the configured
// pipeline, the series registry, the history ledger and metrics into a single
// lifecycle with flock-based locking to prevent multiple instances on the
// same state directory. Run drives either a filesystem watcher or a one-shot
// walk into the registry and shuts every series down cleanly on exit.
//
// Keep orchestration logic here: grouping semantics live in the series
// package and per-series behavior in the pipeline package.
package daemon
