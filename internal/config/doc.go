// Package config loads, normalizes, and validates dvrflow configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours environment fallbacks such as TIVO_MAK and
// TVDB_API_KEY. Overrides carries the per-job option names used by job files
// and CLI flags and overlays them onto a loaded Config.
package config
