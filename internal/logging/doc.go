// Package logging assembles the slog loggers used by dvrflow.
//
// It owns the console and JSON handlers, mirrors records into the on-disk log
// file, and exposes context helpers so stage code tags every line with the
// run ID, the recording being processed and the current stage. A no-op logger
// is provided for tests and wiring code that cannot fail.
package logging
