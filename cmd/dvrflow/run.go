package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dvrflow/internal/batch"
	"dvrflow/internal/config"
	"dvrflow/internal/deps"
	"dvrflow/internal/history"
	"dvrflow/internal/jobfile"
	"dvrflow/internal/logging"
	"dvrflow/internal/metadata"
	"dvrflow/internal/metrics"
	"dvrflow/internal/pipeline"
	"dvrflow/internal/preflight"
	"dvrflow/internal/report"
	"dvrflow/internal/services"
	"dvrflow/internal/services/drapto"
	"dvrflow/internal/services/tivo"
	"dvrflow/internal/services/tvdb"
	"dvrflow/internal/stagerun"
)

// errItemsFailed marks a batch that ran but had failed or cancelled items.
var errItemsFailed = errors.New("one or more recordings failed")

// runPlan is one batch to execute.
type runPlan struct {
	action       jobfile.Action
	overrides    config.Overrides
	downloadOnly bool
	label        string
}

func (p runPlan) scope() pipeline.Scope {
	switch {
	case p.action == jobfile.ActionStrip:
		return pipeline.ScopeDecrypt
	case p.action == jobfile.ActionFetch && p.downloadOnly:
		return pipeline.ScopeAcquire
	default:
		return pipeline.ScopeFull
	}
}

func (p runPlan) source() (batch.Source, error) {
	if p.action == jobfile.ActionFetch {
		title := strings.TrimSpace(p.overrides.Title)
		if title == "" {
			return batch.Source{}, services.Wrap(services.ErrConfiguration, "cli", "fetch", "title is required", nil)
		}
		return batch.DeviceSource(tivo.Query{Title: title, Episode: strings.TrimSpace(p.overrides.Episode)}), nil
	}
	path := strings.TrimSpace(p.overrides.Source)
	if path == "" {
		return batch.Source{}, services.Wrap(services.ErrConfiguration, "cli", string(p.action), "source is required", nil)
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return batch.Source{}, services.Wrap(services.ErrConfiguration, "cli", string(p.action), "expand source", err)
	}
	exts := batch.RecordingExtensions
	if p.action == jobfile.ActionStrip {
		exts = batch.ProtectedExtensions
	}
	return batch.PathSource(expanded, exts...)
}

// session is the wired pipeline for one effective configuration.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	runner *batch.Runner
	store  *history.Store
}

func (s *session) Close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

// newSession overlays plan onto base, checks tools and wires every
// component of the pipeline.
func newSession(ctx context.Context, cc *commandContext, base *config.Config, plan runPlan) (*session, error) {
	cfg, err := base.Apply(plan.overrides, plan.action.Target())
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cli", "apply", "invalid options", err)
	}
	logger, err := cc.logger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if plan.label != "" {
		logger = logger.With(logging.String("job", plan.label))
	}
	scope := plan.scope()
	if missing := requiredMissing(preflight.CheckSystemDeps(ctx, cfg), scope); len(missing) > 0 {
		return nil, services.Wrap(services.ErrToolNotFound, "cli", "preflight",
			"missing required tools: "+strings.Join(missing, ", ")+" (run `dvrflow status` for details)", nil)
	}

	recorder := metrics.New()
	opts := []pipeline.Option{
		pipeline.WithScope(scope),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(recorder),
		pipeline.WithRunner(stagerun.New(stagerun.WithLogger(logger))),
		pipeline.WithResolver(metadata.NewResolver(tvdb.New(
			tvdb.WithBaseURL(cfg.TVDB.BaseURL),
			tvdb.WithTimeout(time.Duration(cfg.TVDB.RequestTimeout)*time.Second),
		), logger)),
	}
	var lister batch.Lister
	if cfg.Device.Hostname != "" {
		client := tivo.New(cfg.Device.Hostname, cfg.Device.MAK,
			tivo.WithTimeout(time.Duration(cfg.Device.RequestTimeout)*time.Second),
			tivo.WithDownloadPause(cfg.DownloadPause()),
			tivo.WithLogger(logger))
		lister = client
		opts = append(opts, pipeline.WithDownloader(client))
	}
	if cfg.Transcode.Engine == config.EngineDrapto {
		opts = append(opts, pipeline.WithEncoder(drapto.NewLibrary(logger)))
	}

	s := &session{cfg: cfg, logger: logger}
	runnerOpts := []batch.Option{
		batch.WithLock(cfg.LockPath()),
		batch.WithDestinations(cfg.Decrypt.Destination, cfg.Transcode.Destination),
		batch.WithMetrics(recorder, cfg.Metrics.TextfilePath),
		batch.WithLogger(logger),
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logging.WarnWithContext(logger, "history unavailable", "history_warning",
			logging.Error(err),
			logging.String(logging.FieldImpact, "runs will not be recorded"))
	} else {
		s.store = store
		runnerOpts = append(runnerOpts, batch.WithLedger(store))
	}
	s.runner = batch.NewRunner(batch.NewExpander(lister), pipeline.New(cfg, opts...), runnerOpts...)
	return s, nil
}

// requiredMissing lists tools the scope cannot run without.
func requiredMissing(statuses []deps.Status, scope pipeline.Scope) []string {
	var relevant []deps.Status
	for _, status := range statuses {
		switch scope {
		case pipeline.ScopeAcquire:
			continue
		case pipeline.ScopeDecrypt:
			if status.Name != "Java" && status.Name != "TivoDecoder" {
				continue
			}
		}
		relevant = append(relevant, status)
	}
	return preflight.MissingRequired(relevant)
}

// runBatch executes plan and persists its report.
func runBatch(ctx context.Context, cc *commandContext, base *config.Config, plan runPlan) (report.Report, error) {
	src, err := plan.source()
	if err != nil {
		return report.Report{}, err
	}
	s, err := newSession(ctx, cc, base, plan)
	if err != nil {
		return report.Report{}, err
	}
	defer s.Close()

	summary, err := s.runner.Run(ctx, src)
	if err != nil {
		return report.Report{}, err
	}
	rep := report.FromSummary(summary)
	if err := report.Write(s.cfg.ReportPath(), rep); err != nil {
		logging.WarnWithContext(s.logger, "report write failed", "report_warning", logging.Error(err))
	}
	return rep, nil
}

func reportsOK(reports ...report.Report) bool {
	for _, rep := range reports {
		if rep.Failed > 0 || rep.Canceled {
			return false
		}
	}
	return true
}
