// Package pipeline provides the series consumers seriesd can run.
//
// Every pipeline supplies a series.Handler per series key:
//
//   - log: records each item and a per-series summary.
//   - copy: copies items into <dest>/.<name> and renames the directory to
//     <dest>/<name> once the series goes quiet.
//   - sort: moves items into <dest>/<name> as they arrive.
//   - ftp: uploads items into .<name> on a remote server and renames the
//     remote directory when the series finishes.
//
// Pipeline.Factory adapts the configured kind to a series.Factory so the
// registry can open a worker for every new key.
package pipeline
