// Package stagerun runs one external tool as an isolated child process.
//
// The runner enforces timeouts by killing the child's process group, keeps a
// bounded copy of stdout and stderr, verifies the expected artifact after a
// clean exit and maps every failure onto ToolNotFoundError,
// ToolExecutionError or ToolTimeoutError. It never deletes inputs.
package stagerun
