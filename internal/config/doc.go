// Package config loads, normalizes, and validates seriesd configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files and applies SERIESD_* environment overrides.
// The Config type centralizes every knob the daemon and CLI need: where items
// arrive, how they are grouped into series, how long a series may stay idle,
// and which pipeline consumes them.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical enum values, and clear validation errors.
package config
