package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dvrflow/internal/config"
	"dvrflow/internal/encode"
	"dvrflow/internal/logging"
	"dvrflow/internal/naming"
	"dvrflow/internal/services"
	"dvrflow/internal/services/tivo"
	"dvrflow/internal/stageexec"
)

func (o *Orchestrator) stageOptions(stage string) stageexec.Options {
	return stageexec.Options{Logger: o.logger, Metrics: o.metrics, Stage: stage}
}

func (o *Orchestrator) acquire(ctx context.Context, st *itemState, s artifactSurvey) (stageexec.Record, error) {
	opts := o.stageOptions(StageAcquiring)
	switch {
	case !st.ref.Remote():
		opts.Bypass = "recording is already local"
	case s.source:
		opts.Skip = "recording already downloaded: " + st.plan.Source
	default:
		opts.Skip = downstreamReason(s, st.plan, true)
	}
	opts.Execute = func(ctx context.Context) (stageexec.Execution, error) {
		dest := st.plan.Source
		start := o.now()
		n, err := o.downloader.Download(ctx, tivo.Recording{
			Title:        st.ref.Title,
			EpisodeTitle: st.ref.EpisodeTitle,
			URL:          st.ref.Locator,
		}, dest)
		exec := stageexec.Execution{Tool: "tivo", Duration: o.now().Sub(start), Output: dest}
		if err != nil {
			if isCancellation(err) {
				return exec, err
			}
			return exec, services.Wrap(services.ErrTransient, StageAcquiring, "download", "downloading recording failed", err)
		}
		if !naming.NonEmpty(dest) {
			return exec, services.Wrap(services.ErrValidation, StageAcquiring, "download", "device returned an empty recording", nil)
		}
		o.metrics.BytesDownloaded(n)
		st.current = dest
		return exec, nil
	}
	return stageexec.Run(ctx, opts)
}

func (o *Orchestrator) decrypt(ctx context.Context, st *itemState, s artifactSurvey) (stageexec.Record, error) {
	opts := o.stageOptions(StageDecrypting)
	switch {
	case o.scope == ScopeAcquire:
		opts.Bypass = "run stops after acquiring"
	case !st.layout.Decrypt:
		opts.Bypass = "recording is not protected"
	case s.decrypted:
		opts.Skip = "decrypted output exists: " + st.plan.Decrypted
	default:
		opts.Skip = downstreamReason(s, st.plan, false)
	}
	opts.Execute = func(ctx context.Context) (stageexec.Execution, error) {
		dest := st.plan.Decrypted
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return stageexec.Execution{Tool: "tivodecoder"}, services.Wrap(services.ErrConfiguration, StageDecrypting, "prepare", "creating decrypt destination failed", err)
		}
		partial := naming.PartialPath(dest)
		res, err := o.runner.Run(ctx, encode.DecryptInvocation(o.cfg.Decrypt, o.cfg.Device.MAK, st.current, partial))
		exec := stageexec.FromResult(res)
		if err != nil {
			removeIfPresent(partial)
			return exec, err
		}
		if err := os.Rename(partial, dest); err != nil {
			removeIfPresent(partial)
			return exec, services.Wrap(services.ErrToolExecution, StageDecrypting, "rename", "publishing decrypted output failed", err)
		}
		exec.Output = dest
		st.current = dest
		return exec, nil
	}
	return stageexec.Run(ctx, opts)
}

func (o *Orchestrator) detect(ctx context.Context, st *itemState, s artifactSurvey) (stageexec.Record, error) {
	opts := o.stageOptions(StageDetecting)
	switch {
	case o.scope != ScopeFull:
		opts.Bypass = "run stops before commercial detection"
	case !o.cfg.DetectEnabled():
		opts.Bypass = "comskip not configured"
	case s.cutList:
		opts.Skip = "cut list exists: " + st.plan.CutList
	default:
		opts.Skip = downstreamReason(s, st.plan, false)
	}
	opts.Execute = func(ctx context.Context) (stageexec.Execution, error) {
		dir := filepath.Dir(st.plan.CutList)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return stageexec.Execution{Tool: "comskip"}, services.Wrap(services.ErrConfiguration, StageDetecting, "prepare", "creating cut list directory failed", err)
		}
		// comskip writes several side files named after its input; they stay
		// in a private directory and only the cut list is published.
		workDir, err := os.MkdirTemp(dir, ".dvrflow-comskip-*")
		if err != nil {
			return stageexec.Execution{Tool: "comskip"}, services.Wrap(services.ErrConfiguration, StageDetecting, "prepare", "creating comskip work directory failed", err)
		}
		defer os.RemoveAll(workDir)

		edl := filepath.Join(workDir, naming.Stem(st.current)+naming.ExtCutList)
		res, err := o.runner.Run(ctx, encode.DetectInvocation(o.cfg.Comskip, st.current, workDir, edl))
		exec := stageexec.FromResult(res)
		if err != nil {
			return exec, err
		}
		if res.OutputPath == "" {
			st.logger.Info("no commercials detected")
			return exec, nil
		}
		if err := os.Rename(edl, st.plan.CutList); err != nil {
			return exec, services.Wrap(services.ErrToolExecution, StageDetecting, "rename", "publishing cut list failed", err)
		}
		exec.Output = st.plan.CutList
		return exec, nil
	}
	return stageexec.Run(ctx, opts)
}

func (o *Orchestrator) transcode(ctx context.Context, st *itemState, s artifactSurvey) (stageexec.Record, error) {
	opts := o.stageOptions(StageTranscoding)
	switch {
	case o.scope != ScopeFull:
		opts.Bypass = "run stops before transcoding"
	case !o.cfg.TranscodeEnabled():
		opts.Bypass = "no transcode engine configured"
	case s.inPlace:
		opts.Skip = "source is already at the final output path: " + st.plan.Final
		st.warn("transcoding skipped because the source already has the final name " + st.plan.Final + "; set transcode.destination to re-encode it")
		logging.WarnWithContext(st.logger, "source already at final path", "transcode_in_place",
			logging.String("path", st.plan.Final),
			logging.String(logging.FieldImpact, "the recording keeps its current encoding"),
			logging.String(logging.FieldErrorHint, "set transcode.destination to a different directory to re-encode"))
	case s.final:
		opts.Skip = "final output exists: " + st.plan.Final
	}
	opts.Execute = func(ctx context.Context) (stageexec.Execution, error) {
		if err := os.MkdirAll(filepath.Dir(st.plan.Final), 0o755); err != nil {
			return stageexec.Execution{Tool: o.cfg.Transcode.Engine}, services.Wrap(services.ErrConfiguration, StageTranscoding, "prepare", "creating transcode destination failed", err)
		}
		var (
			exec stageexec.Execution
			err  error
		)
		if o.cfg.Transcode.Engine == config.EngineDrapto {
			exec, err = o.transcodeDrapto(ctx, st)
		} else {
			exec, err = o.transcodeFFmpeg(ctx, st)
		}
		if err != nil {
			return exec, err
		}
		exec.Output = st.plan.Final
		st.current = st.plan.Final
		return exec, nil
	}
	return stageexec.Run(ctx, opts)
}

func (o *Orchestrator) transcodeFFmpeg(ctx context.Context, st *itemState) (stageexec.Execution, error) {
	final := st.plan.Final
	input, cleanup, err := encode.PrepareInput(st.current, st.plan.CutList, filepath.Dir(final))
	if err != nil {
		return stageexec.Execution{Tool: "ffmpeg"}, services.Wrap(services.ErrValidation, StageTranscoding, "cut list", "reading cut list failed", err)
	}
	defer cleanup()
	if input.Concat {
		st.logger.Info("applying cut list", logging.String("cut_list", st.plan.CutList))
	}

	partial := naming.PartialPath(final)
	res, err := o.runner.Run(ctx, encode.FFmpegInvocation(o.cfg.Transcode, input, partial))
	exec := stageexec.FromResult(res)
	if err != nil {
		removeIfPresent(partial)
		return exec, err
	}
	if err := os.Rename(partial, final); err != nil {
		removeIfPresent(partial)
		return exec, services.Wrap(services.ErrToolExecution, StageTranscoding, "rename", "publishing transcoded output failed", err)
	}
	return exec, nil
}

func (o *Orchestrator) transcodeDrapto(ctx context.Context, st *itemState) (stageexec.Execution, error) {
	exec := stageexec.Execution{Tool: "drapto"}
	if naming.Exists(st.plan.CutList) {
		msg := "cut list ignored by the drapto engine: " + st.plan.CutList
		st.warn(msg)
		logging.WarnWithContext(st.logger, "cut list ignored", "cut_list_ignored",
			logging.String("cut_list", st.plan.CutList),
			logging.String(logging.FieldImpact, "commercials remain in the encoded output"),
			logging.String(logging.FieldErrorHint, "use the ffmpeg engine to apply cut lists"))
	}

	final := st.plan.Final
	workDir, err := os.MkdirTemp(filepath.Dir(final), ".dvrflow-drapto-*")
	if err != nil {
		return exec, services.Wrap(services.ErrConfiguration, StageTranscoding, "prepare", "creating drapto work directory failed", err)
	}
	defer os.RemoveAll(workDir)

	start := o.now()
	produced, err := o.encoder.Encode(ctx, st.current, workDir)
	exec.Duration = o.now().Sub(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return exec, fmt.Errorf("drapto interrupted: %w", ctxErr)
		}
		return exec, services.Wrap(services.ErrToolExecution, StageTranscoding, "drapto", "encode failed", err)
	}
	if !naming.NonEmpty(produced) {
		return exec, services.Wrap(services.ErrToolExecution, StageTranscoding, "drapto", "encoder produced no output", nil)
	}
	if err := os.Rename(produced, final); err != nil {
		return exec, services.Wrap(services.ErrToolExecution, StageTranscoding, "rename", "publishing transcoded output failed", err)
	}
	return exec, nil
}

func removeIfPresent(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
