// Package report renders batch summaries as JSON and persists the most
// recent one atomically so external tooling can poll it.
package report
