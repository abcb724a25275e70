// Package main hosts the seriesd CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon in watch or walk mode, reads
// live state from the daemon's HTTP API, prints the finished-series ledger,
// and scaffolds configuration. Configuration resolution and flag overrides
// are centralized in commandContext so subcommands only render results.
package main
