package drapto

import (
	"log/slog"

	draptolib "github.com/five82/drapto"

	"dvrflow/internal/logging"
)

// logReporter forwards drapto events to slog. Encoding progress is sampled
// at 10% steps so long encodes do not flood the log.
type logReporter struct {
	logger     *slog.Logger
	lastBucket int
}

func newLogReporter(logger *slog.Logger) *logReporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &logReporter{logger: logger, lastBucket: -1}
}

func (r *logReporter) Hardware(s draptolib.HardwareSummary) {
	r.logger.Debug("drapto hardware", logging.String("hostname", s.Hostname))
}

func (r *logReporter) Initialization(s draptolib.InitializationSummary) {
	r.logger.Info("drapto encode initialised",
		logging.String("input", s.InputFile),
		logging.String("output", s.OutputFile),
		logging.Any("resolution", s.Resolution),
		logging.Any("dynamic_range", s.DynamicRange))
}

func (r *logReporter) StageProgress(s draptolib.StageProgress) {
	r.logger.Debug("drapto stage",
		logging.String("drapto_stage", s.Stage),
		logging.String("message", s.Message))
}

func (r *logReporter) CropResult(s draptolib.CropSummary) {
	r.logger.Debug("drapto crop detection",
		logging.String("message", s.Message),
		logging.Any("crop", s.Crop),
		logging.Bool("disabled", s.Disabled))
}

func (r *logReporter) EncodingConfig(s draptolib.EncodingConfigSummary) {
	r.logger.Info("drapto encoding config",
		logging.Any("encoder", s.Encoder),
		logging.Any("preset", s.Preset),
		logging.Any("quality", s.Quality),
		logging.Any("audio_codec", s.AudioCodec))
}

func (r *logReporter) EncodingStarted(totalFrames uint64) {
	r.lastBucket = -1
	r.logger.Debug("drapto encoding started", logging.Any("total_frames", totalFrames))
}

func (r *logReporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	bucket := int(float64(s.Percent) / 10)
	if bucket <= r.lastBucket {
		return
	}
	r.lastBucket = bucket
	r.logger.Info("drapto encoding progress",
		logging.Int("percent", bucket*10),
		logging.Any("speed", s.Speed),
		logging.Any("fps", s.FPS),
		logging.Any("eta", s.ETA))
}

func (r *logReporter) ValidationComplete(s draptolib.ValidationSummary) {
	if s.Passed {
		r.logger.Info("drapto validation passed")
		return
	}
	for _, step := range s.Steps {
		if step.Passed {
			continue
		}
		logging.WarnWithContext(r.logger, "drapto validation step failed", "encode_validation",
			logging.String("step", step.Name),
			logging.Any("details", step.Details),
			logging.String(logging.FieldImpact, "encoded output may be unusable"))
	}
}

func (r *logReporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.logger.Info("drapto encoding complete",
		logging.String("output", s.OutputPath),
		logging.Any("original_size", s.OriginalSize),
		logging.Any("encoded_size", s.EncodedSize),
		logging.Any("duration", s.TotalTime))
}

func (r *logReporter) Warning(message string) {
	logging.WarnWithContext(r.logger, "drapto warning", "drapto_warning", logging.String("message", message))
}

func (r *logReporter) Error(e draptolib.ReporterError) {
	r.logger.Error("drapto error",
		logging.String("title", e.Title),
		logging.String("message", e.Message),
		logging.String("suggestion", e.Suggestion))
}

func (r *logReporter) OperationComplete(message string) {
	r.logger.Debug("drapto operation complete", logging.String("message", message))
}

func (r *logReporter) BatchStarted(s draptolib.BatchStartInfo) {
	r.logger.Debug("drapto batch started", logging.Any("files", s.TotalFiles))
}

func (r *logReporter) FileProgress(s draptolib.FileProgressContext) {
	r.logger.Debug("drapto file progress", logging.Any("current", s.CurrentFile), logging.Any("total", s.TotalFiles))
}

func (r *logReporter) BatchComplete(s draptolib.BatchSummary) {
	r.logger.Debug("drapto batch complete", logging.Any("successful", s.SuccessfulCount), logging.Any("total", s.TotalFiles))
}

var _ draptolib.Reporter = (*logReporter)(nil)
