package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"dvrflow/internal/history"
	"dvrflow/internal/logging"
	"dvrflow/internal/metrics"
	"dvrflow/internal/naming"
	"dvrflow/internal/pipeline"
	"dvrflow/internal/services"
)

// StageExpanding labels failures that happen before an item reaches the
// pipeline.
const StageExpanding = "expanding"

// ErrLocked is returned when another dvrflow process holds the run lock.
var ErrLocked = errors.New("another dvrflow run is in progress")

// Processor runs one recording through the pipeline.
type Processor interface {
	Process(ctx context.Context, ref pipeline.RecordingRef) pipeline.Outcome
	Scope() pipeline.Scope
}

// Ledger persists run history.
type Ledger interface {
	BeginRun(ctx context.Context, source, mode string) (history.Run, error)
	RecordItem(ctx context.Context, rec history.ItemRecord) error
	FinishRun(ctx context.Context, runID string, counts history.Counts) error
}

// Summary is the result of one batch.
type Summary struct {
	RunID      string
	Source     string
	Mode       string
	Items      []pipeline.Outcome
	Succeeded  int
	Skipped    int
	Failed     int
	Canceled   bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Total is the number of items the batch reached.
func (s Summary) Total() int { return len(s.Items) }

// OK reports whether no item failed and the batch was not cancelled.
func (s Summary) OK() bool { return s.Failed == 0 && !s.Canceled }

func (s *Summary) add(out pipeline.Outcome) {
	s.Items = append(s.Items, out)
	switch out.Status {
	case pipeline.StatusSucceeded:
		s.Succeeded++
	case pipeline.StatusSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
}

// Runner drives a Processor over every recording of a Source.
type Runner struct {
	expander     *Expander
	processor    Processor
	ledger       Ledger
	metrics      *metrics.Recorder
	lockPath     string
	destinations []string
	textfilePath string
	logger       *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLedger records every run and item.
func WithLedger(l Ledger) Option {
	return func(r *Runner) { r.ledger = l }
}

// WithMetrics counts expansion failures and exports the registry after
// each run when textfilePath is set.
func WithMetrics(m *metrics.Recorder, textfilePath string) Option {
	return func(r *Runner) {
		r.metrics = m
		r.textfilePath = textfilePath
	}
}

// WithLock holds a file lock at path for the whole run.
func WithLock(path string) Option {
	return func(r *Runner) { r.lockPath = path }
}

// WithDestinations declares the configured stage destinations so Run can
// refuse sources that would send several recordings to one explicit file.
func WithDestinations(dests ...string) Option {
	return func(r *Runner) { r.destinations = append(r.destinations, dests...) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner builds a batch runner.
func NewRunner(expander *Expander, processor Processor, opts ...Option) *Runner {
	r := &Runner{expander: expander, processor: processor, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "batch")
	return r
}

// Run processes src item by item. Failures are isolated per item;
// cancellation is honoured between items and marks the summary cancelled.
// The returned error covers only problems that prevent the batch from
// starting, such as a held lock.
func (r *Runner) Run(ctx context.Context, src Source) (Summary, error) {
	summary := Summary{Source: src.String(), Mode: r.processor.Scope().String(), StartedAt: time.Now()}

	if err := checkDestinations(src, r.destinations); err != nil {
		return summary, err
	}
	if r.lockPath != "" {
		unlock, err := acquireLock(r.lockPath)
		if err != nil {
			return summary, err
		}
		defer unlock()
	}

	if r.ledger != nil {
		run, err := r.ledger.BeginRun(ctx, summary.Source, summary.Mode)
		if err != nil {
			logging.WarnWithContext(r.logger, "history unavailable", "history_warning",
				logging.Error(err),
				logging.String(logging.FieldImpact, "this run will not appear in dvrflow history"))
		} else {
			summary.RunID = run.ID
		}
	}
	if summary.RunID != "" {
		ctx = services.WithRunID(ctx, summary.RunID)
	}
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.String("source", summary.Source),
		logging.String("mode", summary.Mode))

	for ref, err := range r.expander.Expand(ctx, src) {
		if ctx.Err() != nil {
			summary.Canceled = true
			break
		}
		var out pipeline.Outcome
		if err != nil {
			now := time.Now()
			out = pipeline.Outcome{Ref: ref, Status: pipeline.StatusFailed, FailedStage: StageExpanding, Err: err, StartedAt: now, FinishedAt: now}
			r.metrics.ItemOutcome(string(out.Status))
			r.metrics.Failure(StageExpanding, services.Classify(err))
			logger.Error("source expansion failed",
				logging.String(logging.FieldEventType, "expand_failure"),
				logging.String(logging.FieldErrorKind, services.Classify(err)),
				logging.Error(err))
		} else {
			out = r.processor.Process(ctx, ref)
		}
		summary.add(out)
		r.record(ctx, logger, summary.RunID, out)
	}
	if ctx.Err() != nil {
		summary.Canceled = true
	}
	summary.FinishedAt = time.Now()

	if r.ledger != nil && summary.RunID != "" {
		counts := history.Counts{Succeeded: summary.Succeeded, Skipped: summary.Skipped, Failed: summary.Failed, Canceled: summary.Canceled}
		if err := r.ledger.FinishRun(context.WithoutCancel(ctx), summary.RunID, counts); err != nil {
			logging.WarnWithContext(logger, "history update failed", "history_warning", logging.Error(err))
		}
	}
	r.metrics.RunFinished(summary.FinishedAt)
	if err := r.metrics.WriteTextfile(r.textfilePath); err != nil {
		logging.WarnWithContext(logger, "metrics export failed", "metrics_warning",
			logging.String("path", r.textfilePath),
			logging.Error(err))
	}

	logger.Info("batch finished",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed),
		logging.Bool("canceled", summary.Canceled),
		logging.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)))
	return summary, nil
}

func (r *Runner) record(ctx context.Context, logger *slog.Logger, runID string, out pipeline.Outcome) {
	if r.ledger == nil || runID == "" {
		return
	}
	if err := r.ledger.RecordItem(context.WithoutCancel(ctx), ItemRecord(runID, out)); err != nil {
		logging.WarnWithContext(logger, "history write failed", "history_warning",
			logging.String(logging.FieldItem, out.Ref.Label()),
			logging.Error(err))
	}
}

// ItemRecord converts an outcome for the history ledger.
func ItemRecord(runID string, out pipeline.Outcome) history.ItemRecord {
	rec := history.ItemRecord{
		RunID:        runID,
		Title:        out.Ref.Title,
		EpisodeTitle: out.Ref.EpisodeTitle,
		SourcePath:   out.Ref.SourcePath,
		FinalPath:    out.Path,
		Status:       string(out.Status),
		FailedStage:  out.FailedStage,
		Warnings:     out.Warnings,
		StartedAt:    out.StartedAt,
		FinishedAt:   out.FinishedAt,
	}
	if rec.SourcePath == "" {
		rec.SourcePath = out.Ref.Locator
	}
	if out.Err != nil {
		rec.ErrorKind = services.Classify(out.Err)
		rec.ErrorMessage = out.Err.Error()
	}
	for _, stage := range out.Stages {
		rec.Stages = append(rec.Stages, history.StageRecord{
			Stage:       stage.Stage,
			Outcome:     string(stage.Outcome),
			Tool:        stage.Tool,
			ExitCode:    stage.ExitCode,
			Duration:    stage.Duration,
			Diagnostics: stage.Diagnostics,
		})
	}
	return rec
}

// checkDestinations rejects explicit file destinations for sources that can
// expand to more than one recording. Every item would plan the same output,
// later items would see the first item's artifact and skip, and a replace
// policy would then delete inputs that were never processed.
func checkDestinations(src Source, dests []string) error {
	if src.Kind == KindFile {
		return nil
	}
	for _, dest := range dests {
		dest = strings.TrimSpace(dest)
		if naming.IsExplicitFile(dest) {
			return services.Wrap(services.ErrConfiguration, StageExpanding, "validate",
				fmt.Sprintf("destination %s is a single file but a %s source can hold many recordings; use a directory", dest, src.Kind), nil)
		}
	}
	return nil
}

func acquireLock(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, path)
	}
	return func() { _ = lock.Unlock() }, nil
}
