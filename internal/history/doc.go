// Package history keeps a SQLite ledger of batch runs and the outcome of
// every recording they processed.
//
// Each run gets a UUID when it starts; item records carry the terminal
// status, the final artifact path, per-stage outcomes and any warnings or
// diagnostics. The CLI reads the ledger for `dvrflow history` and
// `dvrflow status`. Writes retry briefly on SQLITE_BUSY so a watcher and a
// manual run can share one database.
package history
