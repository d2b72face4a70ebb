// Package stageexec wraps a single pipeline stage with lifecycle logging,
// failure classification and metrics so every stage reports the same way.
package stageexec
