// Package history keeps a SQLite ledger of finished series.
//
// Each row records one worker run: its key, pipeline, item and failure
// counts, timing and outcome. The ledger is an audit trail for operators and
// the CLI; it is never read back to resume work after a restart.
//
// Recorder adapts the Store to series.Observer so the registry writes rows as
// series finish or fail to start.
package history
