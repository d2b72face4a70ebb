// Package main hosts the dvrflow CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into batch runs
// over local recordings, device queries and job files, and exposes the run
// history, dependency status and configuration scaffolding. Configuration
// resolution, flag overlays and logger setup live here so the internal
// packages stay free of terminal concerns.
//
// Keep this package lean: add behaviour to the internal packages first, then
// surface it through a command or flag.
package main
