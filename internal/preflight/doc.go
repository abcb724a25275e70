// Package preflight provides readiness checks for the filesystem paths and
// remote endpoints seriesd depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before opening the source. Any failed check
//     aborts startup so items are never routed to a pipeline that cannot
//     write them.
//   - The CLI "seriesd status" command prints every Result.
//
// Checks that only apply to one pipeline are skipped for the others.
package preflight
