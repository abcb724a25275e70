// Package api defines the wire-format types served by the daemon's HTTP
// endpoint and a small client the CLI uses to read them.
//
// # Key Types
//
// DaemonStatus: running state, source and pipeline settings, ingest counters,
// metric totals and preflight results.
//
// Series: transport representation of one open series worker.
//
// HistoryRun: one finished series from the sqlite ledger.
//
// # Converters
//
// FromWorkerInfo: series.WorkerInfo -> Series.
//
// FromRun: history.Run -> HistoryRun.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds and
// are omitted when unset. Durations are reported in seconds.
package api
