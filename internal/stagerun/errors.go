package stagerun

import (
	"fmt"
	"strings"
	"time"

	"dvrflow/internal/services"
)

// ToolNotFoundError reports a missing binary or required support file.
type ToolNotFoundError struct {
	Tool string
	Path string
	Err  error
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s not found: %v", e.Tool, e.Path, e.Err)
}

func (e *ToolNotFoundError) Unwrap() []error {
	return []error{services.ErrToolNotFound, e.Err}
}

// ToolExecutionError reports a non-zero exit, or a zero exit that did not
// produce the expected artifact.
type ToolExecutionError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Reason   string
}

func (e *ToolExecutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Tool, e.Reason)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if tail := lastLine(e.Stderr); tail != "" {
		b.WriteString(": ")
		b.WriteString(tail)
	}
	return b.String()
}

func (e *ToolExecutionError) Unwrap() error { return services.ErrToolExecution }

// ToolTimeoutError reports a child killed after exceeding its timeout.
type ToolTimeoutError struct {
	Tool    string
	Timeout time.Duration
	Stderr  string
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Tool, e.Timeout)
}

func (e *ToolTimeoutError) Unwrap() error { return services.ErrToolTimeout }

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
