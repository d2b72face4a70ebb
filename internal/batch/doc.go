// Package batch expands a source (a file, a directory or a device query)
// into recordings and drives the pipeline over them one at a time.
//
// Items run sequentially. A failing item is recorded and the batch moves on;
// cancellation stops the batch before the next item. The whole run holds a
// file lock in the state directory so two processes never work the same
// tree, and every outcome is written to the history ledger.
package batch
