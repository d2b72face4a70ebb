// Package watch runs the pipeline over recordings as they land in a
// directory. A file is handed off only once its size and modification time
// have been stable for the settle period, and handlers run one at a time
// on the watcher's goroutine.
package watch
