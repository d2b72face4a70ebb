package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"dvrflow/internal/config"
	"dvrflow/internal/logging"
	"dvrflow/internal/metadata"
	"dvrflow/internal/metrics"
	"dvrflow/internal/naming"
	"dvrflow/internal/services"
	"dvrflow/internal/services/drapto"
	"dvrflow/internal/services/tivo"
	"dvrflow/internal/stageexec"
	"dvrflow/internal/stagerun"
)

// Resolver numbers episodes.
type Resolver interface {
	Resolve(ctx context.Context, title, episodeTitle string, creds metadata.Credentials) (*metadata.EpisodeMetadata, string, error)
}

// Downloader fetches device recordings.
type Downloader interface {
	Download(ctx context.Context, rec tivo.Recording, dest string) (int64, error)
}

// Orchestrator drives one recording at a time through the stage sequence.
type Orchestrator struct {
	cfg        *config.Config
	scope      Scope
	resolver   Resolver
	runner     stagerun.Runner
	downloader Downloader
	encoder    drapto.Encoder
	metrics    *metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithScope limits how far items are carried.
func WithScope(scope Scope) Option {
	return func(o *Orchestrator) { o.scope = scope }
}

// WithResolver sets the metadata resolver.
func WithResolver(r Resolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithRunner sets the external tool runner.
func WithRunner(r stagerun.Runner) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.runner = r
		}
	}
}

// WithDownloader sets the device client used for remote recordings.
func WithDownloader(d Downloader) Option {
	return func(o *Orchestrator) { o.downloader = d }
}

// WithEncoder sets the in-process transcode engine.
func WithEncoder(e drapto.Encoder) Option {
	return func(o *Orchestrator) { o.encoder = e }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New builds an orchestrator over the effective configuration.
func New(cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runner == nil {
		o.runner = stagerun.New(stagerun.WithLogger(o.logger))
	}
	o.logger = logging.NewComponentLogger(o.logger, "pipeline")
	return o
}

// Scope reports how far this orchestrator carries items.
func (o *Orchestrator) Scope() Scope { return o.scope }

// itemState is the mutable per-item context. It never outlives Process.
type itemState struct {
	ref      RecordingRef
	name     string
	meta     *metadata.EpisodeMetadata
	plan     naming.Plan
	layout   naming.Layout
	current  string
	warnings []string
	stages   []stageexec.Record
	logger   *slog.Logger
}

func (s *itemState) warn(msg string) {
	s.warnings = append(s.warnings, msg)
}

// Process runs the stage sequence for ref. It never returns an error: every
// failure is reported in the Outcome so one item cannot abort a batch.
func (o *Orchestrator) Process(ctx context.Context, ref RecordingRef) Outcome {
	started := o.now()
	ctx = services.WithItem(ctx, ref.Label())
	st := &itemState{ref: ref, current: ref.SourcePath, logger: logging.WithContext(ctx, o.logger)}

	out := o.run(ctx, st)
	out.Ref = ref
	out.StartedAt = started
	out.FinishedAt = o.now()
	out.Name = st.name
	out.Warnings = st.warnings
	out.Stages = st.stages
	if out.Path == "" {
		out.Path = st.current
	}

	o.metrics.ItemOutcome(string(out.Status))
	attrs := []logging.Attr{
		logging.String("status", string(out.Status)),
		logging.String("path", out.Path),
		logging.Duration("duration", out.FinishedAt.Sub(started)),
	}
	if len(out.Warnings) > 0 {
		attrs = append(attrs, logging.Int("warnings", len(out.Warnings)))
	}
	if out.Err != nil {
		attrs = append(attrs,
			logging.String("failed_stage", out.FailedStage),
			logging.String(logging.FieldErrorKind, services.Classify(out.Err)),
			logging.Error(out.Err))
		st.logger.Error("item failed", logging.Args(attrs...)...)
	} else {
		st.logger.Info("item finished", logging.Args(attrs...)...)
	}
	return out
}

func (o *Orchestrator) run(ctx context.Context, st *itemState) Outcome {
	if stage, err := o.checkConfig(st.ref); err != nil {
		return failed(stage, err)
	}

	if stage, err := o.resolve(ctx, st); err != nil {
		return failed(stage, err)
	}

	st.name = naming.CanonicalName(st.ref.Title, st.ref.EpisodeTitle, st.meta)
	if skipDir := o.cfg.Paths.SkipIfInPath; skipDir != "" && naming.ExistsAnyExt(skipDir, st.name) {
		st.logger.Info("recording already present in skip path",
			logging.String(logging.FieldEventType, "item_skipped"),
			logging.String("skip_path", skipDir),
			logging.String("name", st.name))
		return Outcome{Status: StatusSkipped}
	}

	o.plan(st)
	exists := o.survey(st)

	steps := []struct {
		stage string
		fn    func(context.Context, *itemState, artifactSurvey) (stageexec.Record, error)
	}{
		{StageAcquiring, o.acquire},
		{StageDecrypting, o.decrypt},
		{StageDetecting, o.detect},
		{StageTranscoding, o.transcode},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return failed(step.stage, err)
		}
		rec, err := step.fn(ctx, st, exists)
		st.stages = append(st.stages, rec)
		if err != nil {
			return failed(step.stage, err)
		}
	}

	o.finalize(ctx, st)
	return Outcome{Status: settledStatus(st), Path: st.current}
}

// settledStatus reports skipped only when no stage ran, an existing artifact
// satisfied at least one stage, and the item's current artifact is present.
// An item every stage bypassed needed no work and counts as succeeded.
func settledStatus(st *itemState) Status {
	satisfied := false
	for _, rec := range st.stages {
		switch {
		case rec.Outcome == stageexec.OutcomeRan:
			return StatusSucceeded
		case rec.Outcome == stageexec.OutcomeSkipped && rec.Stage != StageResolving:
			satisfied = true
		}
	}
	if satisfied && naming.NonEmpty(st.current) {
		return StatusSkipped
	}
	return StatusSucceeded
}

func failed(stage string, err error) Outcome {
	return Outcome{Status: StatusFailed, FailedStage: stage, Err: err}
}

// checkConfig rejects items whose stages cannot possibly run before any
// stage starts.
func (o *Orchestrator) checkConfig(ref RecordingRef) (string, error) {
	if ref.Remote() {
		if strings.TrimSpace(o.cfg.Paths.DestDir) == "" {
			return StageAcquiring, services.Wrap(services.ErrConfiguration, StageAcquiring, "validate", "dest_dir is required to download recordings", nil)
		}
		if o.downloader == nil {
			return StageAcquiring, services.Wrap(services.ErrConfiguration, StageAcquiring, "validate", "no device client configured", nil)
		}
	} else if strings.TrimSpace(ref.SourcePath) == "" {
		return StageAcquiring, services.Wrap(services.ErrValidation, StageAcquiring, "validate", "recording has neither a source path nor a locator", nil)
	}

	if ref.Format == FormatTiVo && o.scope != ScopeAcquire {
		if !o.cfg.DecryptEnabled() {
			return StageDecrypting, services.Wrap(services.ErrConfiguration, StageDecrypting, "validate", "tivo_decoder_path is required for .TiVo recordings", nil)
		}
		if strings.TrimSpace(o.cfg.Device.MAK) == "" {
			return StageDecrypting, services.Wrap(services.ErrConfiguration, StageDecrypting, "validate", "mak is required to decrypt .TiVo recordings", nil)
		}
	}
	if o.scope == ScopeFull && o.cfg.Transcode.Engine == config.EngineDrapto && o.encoder == nil {
		return StageTranscoding, services.Wrap(services.ErrConfiguration, StageTranscoding, "validate", "drapto engine selected but unavailable", nil)
	}
	return "", nil
}

func (o *Orchestrator) resolve(ctx context.Context, st *itemState) (string, error) {
	creds := metadata.Credentials{
		APIKey:        o.cfg.TVDB.APIKey,
		UserKey:       o.cfg.TVDB.UserKey,
		Username:      o.cfg.TVDB.Username,
		IgnoreFailure: o.cfg.TVDB.IgnoreFailure,
	}
	opts := o.stageOptions(StageResolving)
	switch {
	case st.ref.Meta != nil:
		st.meta = st.ref.Meta
		opts.Skip = "season and episode known from filename"
	case strings.TrimSpace(st.ref.EpisodeTitle) == "":
		opts.Bypass = "recording has no episode title"
	case o.resolver == nil || !o.cfg.TVDBCredentialsSet():
		opts.Bypass = "tvdb credentials not configured"
	default:
		opts.Execute = func(ctx context.Context) (stageexec.Execution, error) {
			start := o.now()
			meta, warning, err := o.resolver.Resolve(ctx, st.ref.Title, st.ref.EpisodeTitle, creds)
			exec := stageexec.Execution{Tool: "tvdb", Duration: o.now().Sub(start)}
			if err != nil {
				return exec, err
			}
			if warning != "" {
				st.warn(warning)
			}
			st.meta = meta
			return exec, nil
		}
	}
	rec, err := stageexec.Run(ctx, opts)
	st.stages = append(st.stages, rec)
	if err != nil {
		return StageResolving, err
	}
	return "", nil
}

// plan fixes every artifact path for the item.
func (o *Orchestrator) plan(st *itemState) {
	layout := naming.Layout{
		DownloadDir:          o.cfg.Paths.DestDir,
		DecryptDestination:   o.cfg.Decrypt.Destination,
		TranscodeDestination: o.cfg.Transcode.Destination,
		Decrypt:              st.ref.Format == FormatTiVo && o.scope != ScopeAcquire,
	}
	if o.scope == ScopeFull && o.cfg.TranscodeEnabled() {
		layout.Container = o.cfg.Transcode.Container
	}

	source := st.ref.SourcePath
	if st.ref.Remote() {
		source = naming.DownloadPath(o.cfg.Paths.DestDir, st.name)
	}
	st.layout = layout
	st.plan = naming.NewPlan(st.name, source, layout)
	st.current = source
}

// artifactSurvey is the existence snapshot every skip decision uses. It is
// taken once, before the first stage runs.
type artifactSurvey struct {
	source    bool
	decrypted bool
	cutList   bool
	final     bool
	// inPlace is set when the transcode input already sits at the final
	// output path, so the existing file is the source itself.
	inPlace bool
}

func (o *Orchestrator) survey(st *itemState) artifactSurvey {
	s := artifactSurvey{
		source:  naming.NonEmpty(st.plan.Source),
		cutList: naming.Exists(st.plan.CutList),
	}
	if st.layout.Decrypt {
		s.decrypted = naming.NonEmpty(st.plan.Decrypted)
	}
	if st.plan.Final != "" {
		s.final = naming.NonEmpty(st.plan.Final)
		s.inPlace = s.final && filepath.Clean(st.plan.Final) == filepath.Clean(st.plan.Decrypted)
	}
	switch {
	case s.final:
		st.current = st.plan.Final
	case s.decrypted:
		st.current = st.plan.Decrypted
	}
	return s
}

// downstreamReason names the first existing artifact after a stage.
func downstreamReason(s artifactSurvey, plan naming.Plan, includeDecrypted bool) string {
	switch {
	case s.final:
		return "final output exists: " + plan.Final
	case includeDecrypted && s.decrypted:
		return "decrypted output exists: " + plan.Decrypted
	}
	return ""
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
