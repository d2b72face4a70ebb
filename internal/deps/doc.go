// Package deps reports whether the external tools the pipeline stages
// shell out to are installed.
package deps
