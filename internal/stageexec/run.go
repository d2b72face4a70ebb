package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dvrflow/internal/logging"
	"dvrflow/internal/metrics"
	"dvrflow/internal/services"
	"dvrflow/internal/stagerun"
)

// Outcome is how a stage ended for one item.
type Outcome string

const (
	// OutcomeRan means the stage produced its artifact.
	OutcomeRan Outcome = "ran"
	// OutcomeSkipped means the artifact (or a downstream one) already existed.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeBypassed means the stage is not configured for this run.
	OutcomeBypassed Outcome = "bypassed"
	// OutcomeFailed means the stage ended the item.
	OutcomeFailed Outcome = "failed"
)

// Record describes one stage for reports and the history ledger.
type Record struct {
	Stage       string
	Outcome     Outcome
	Tool        string
	ExitCode    int
	Duration    time.Duration
	Output      string
	Reason      string
	Diagnostics string
}

// Execution is what a stage body reports back.
type Execution struct {
	Tool     string
	ExitCode int
	Duration time.Duration
	Output   string
	// Diagnostics is captured tool output, attached to failures.
	Diagnostics string
}

// FromResult converts a runner result.
func FromResult(res stagerun.Result) Execution {
	return Execution{
		Tool:        res.Tool,
		ExitCode:    res.ExitCode,
		Duration:    res.Duration,
		Output:      res.OutputPath,
		Diagnostics: res.Diagnostics(),
	}
}

// Options controls one stage execution.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Stage   string
	// Bypass, when set, explains why the stage does not apply.
	Bypass string
	// Skip, when set, explains which existing artifact satisfies the stage.
	// It is decided once by the caller before Run.
	Skip    string
	Execute func(context.Context) (Execution, error)
}

// Run executes a stage body with the standard lifecycle logging and metrics:
// stage_start, then stage_complete or stage_failure. Bypassed and skipped
// stages never call Execute.
func Run(ctx context.Context, opts Options) (Record, error) {
	stageCtx := services.WithStage(ctx, opts.Stage)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)
	rec := Record{Stage: opts.Stage}

	switch {
	case opts.Bypass != "":
		rec.Outcome = OutcomeBypassed
		rec.Reason = opts.Bypass
		stageLogger.Debug("stage bypassed",
			logging.String(logging.FieldEventType, "stage_bypassed"),
			logging.String("reason", opts.Bypass))
		opts.Metrics.StageOutcome(opts.Stage, string(rec.Outcome))
		return rec, nil
	case opts.Skip != "":
		rec.Outcome = OutcomeSkipped
		rec.Reason = opts.Skip
		stageLogger.Info("stage skipped",
			logging.String(logging.FieldEventType, "stage_skipped"),
			logging.String("reason", opts.Skip))
		opts.Metrics.StageOutcome(opts.Stage, string(rec.Outcome))
		return rec, nil
	}
	if opts.Execute == nil {
		return rec, fmt.Errorf("stage handler unavailable: %s", opts.Stage)
	}

	stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	exec, err := opts.Execute(stageCtx)
	rec.Tool = exec.Tool
	rec.ExitCode = exec.ExitCode
	rec.Duration = exec.Duration
	rec.Output = exec.Output
	opts.Metrics.StageDuration(opts.Stage, exec.Duration)

	if err != nil {
		rec.Outcome = OutcomeFailed
		rec.Diagnostics = exec.Diagnostics
		kind := services.Classify(err)
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorKind, kind),
			logging.Error(err),
		}
		if exec.Tool != "" {
			attrs = append(attrs, logging.String(logging.FieldTool, exec.Tool))
		}
		if hint := hintFor(err); hint != "" {
			attrs = append(attrs, logging.String(logging.FieldErrorHint, hint))
		}
		if diag := strings.TrimSpace(exec.Diagnostics); diag != "" {
			attrs = append(attrs, logging.String("diagnostics", diag))
		}
		stageLogger.Error("stage failed", logging.Args(attrs...)...)
		opts.Metrics.StageOutcome(opts.Stage, string(rec.Outcome))
		opts.Metrics.Failure(opts.Stage, kind)
		return rec, err
	}

	rec.Outcome = OutcomeRan
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("output", exec.Output),
		logging.Duration("duration", exec.Duration))
	opts.Metrics.StageOutcome(opts.Stage, string(rec.Outcome))
	return rec, nil
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, services.ErrToolNotFound):
		return "install the tool or fix its configured path"
	case errors.Is(err, services.ErrToolTimeout):
		return "raise the stage timeout in the config"
	case errors.Is(err, services.ErrConfiguration):
		return "run dvrflow config validate"
	case errors.Is(err, services.ErrMetadataLookup):
		return "check TVDB credentials or set tvdb_ignore_failure"
	}
	return ""
}

var titleCaser = cases.Title(language.English)

// Label renders a stage name for humans ("transcoding" -> "Transcoding").
func Label(stage string) string {
	return titleCaser.String(strings.ReplaceAll(stage, "_", " "))
}
