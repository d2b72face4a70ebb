package stagerun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"dvrflow/internal/logging"
)

// Invocation describes one external tool run. Arguments are passed directly
// to the binary; no shell is involved.
type Invocation struct {
	// Tool is a short label used in logs and errors.
	Tool   string
	Binary string
	Args   []string
	// Timeout of zero means no limit beyond the caller's context.
	Timeout time.Duration
	// ExpectedOutput must exist and be non-empty after a zero exit.
	ExpectedOutput string
	// RequiredFiles must exist before the tool starts (e.g. a jar or ini).
	RequiredFiles []string
	// NoOutputExitCodes are exit codes that mean success without an artifact.
	NoOutputExitCodes []int
}

// Result is the outcome of one tool run.
type Result struct {
	Tool       string
	ExitCode   int
	OutputPath string
	Stdout     string
	Stderr     string
	Duration   time.Duration
}

// Diagnostics joins the captured streams for display.
func (r Result) Diagnostics() string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(r.Stdout); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(r.Stderr); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

// Runner executes external tools.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// ProcessRunner runs tools as isolated child processes.
type ProcessRunner struct {
	logger       *slog.Logger
	captureLimit int
	waitDelay    time.Duration
}

// Option configures a ProcessRunner.
type Option func(*ProcessRunner)

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *ProcessRunner) {
		if logger != nil {
			r.logger = logging.NewComponentLogger(logger, "stagerun")
		}
	}
}

// WithCaptureLimit bounds each captured stream to limit bytes.
func WithCaptureLimit(limit int) Option {
	return func(r *ProcessRunner) {
		if limit > 0 {
			r.captureLimit = limit
		}
	}
}

// New constructs a ProcessRunner.
func New(opts ...Option) *ProcessRunner {
	r := &ProcessRunner{
		logger:       logging.NewNop(),
		captureLimit: DefaultCaptureLimit,
		waitDelay:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Runner = (*ProcessRunner)(nil)

// Run starts the tool, waits for it and classifies the outcome. Cancelling
// ctx or exceeding the timeout kills the whole process group before Run
// returns. Inputs are never touched.
func (r *ProcessRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	tool := inv.Tool
	if tool == "" {
		tool = inv.Binary
	}
	result := Result{Tool: tool, ExitCode: -1}

	binary, err := resolveBinary(inv.Binary)
	if err != nil {
		return result, &ToolNotFoundError{Tool: tool, Path: inv.Binary, Err: err}
	}
	for _, required := range inv.RequiredFiles {
		if _, err := os.Stat(required); err != nil {
			return result, &ToolNotFoundError{Tool: tool, Path: required, Err: err}
		}
	}

	runCtx := ctx
	cancel := func() {}
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
	}
	defer cancel()

	stdout := newCappedBuffer(r.captureLimit)
	stderr := newCappedBuffer(r.captureLimit)
	cmd := exec.CommandContext(runCtx, binary, inv.Args...) //nolint:gosec
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = r.waitDelay
	isolate(cmd)

	r.logger.Debug("tool starting",
		logging.String(logging.FieldTool, tool),
		logging.String("binary", binary),
		logging.String("args", strings.Join(inv.Args, " ")),
		logging.Duration("timeout", inv.Timeout))

	start := time.Now()
	runErr := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		return result, fmt.Errorf("%s interrupted: %w", tool, ctx.Err())
	case runCtx.Err() != nil:
		return result, &ToolTimeoutError{Tool: tool, Timeout: inv.Timeout, Stderr: result.Stderr}
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return result, &ToolExecutionError{Tool: tool, ExitCode: result.ExitCode, Stderr: result.Stderr, Reason: runErr.Error()}
		}
		if slices.Contains(inv.NoOutputExitCodes, result.ExitCode) {
			r.logger.Debug("tool finished without artifact",
				logging.String(logging.FieldTool, tool),
				logging.Int("exit_code", result.ExitCode))
			return result, nil
		}
		return result, &ToolExecutionError{Tool: tool, ExitCode: result.ExitCode, Stderr: result.Stderr, Reason: "exited with failure"}
	}

	if inv.ExpectedOutput != "" {
		info, err := os.Stat(inv.ExpectedOutput)
		if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
			return result, &ToolExecutionError{
				Tool:   tool,
				Stderr: result.Stderr,
				Reason: fmt.Sprintf("expected output %s missing or empty", inv.ExpectedOutput),
			}
		}
		result.OutputPath = inv.ExpectedOutput
	}

	r.logger.Debug("tool finished",
		logging.String(logging.FieldTool, tool),
		logging.Duration("duration", result.Duration))
	return result, nil
}

func resolveBinary(binary string) (string, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return "", errors.New("binary not configured")
	}
	if strings.ContainsRune(binary, os.PathSeparator) {
		info, err := os.Stat(binary)
		if err != nil {
			return "", err
		}
		if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
			return "", fmt.Errorf("%s is not executable", binary)
		}
		return binary, nil
	}
	return exec.LookPath(binary)
}
