package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dvrflow/internal/batch"
	"dvrflow/internal/config"
	"dvrflow/internal/jobfile"
	"dvrflow/internal/logging"
	"dvrflow/internal/report"
	"dvrflow/internal/services"
	"dvrflow/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process .TiVo recordings as they arrive in a directory",
		Long: "Watch a directory and run the full pipeline on each .TiVo recording once its size\n" +
			"has been stable for [watch] settle_seconds. Recordings already present are processed first.",
		Args: cobra.NoArgs,
	}
	flags := bindOverrideFlags(cmd, groupSource|groupDecrypt|groupMetadata|groupDetect|groupTranscode)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		base, err := ctx.ensureConfig()
		if err != nil {
			return err
		}
		overrides := flags.resolve(cmd)
		dir, err := config.ExpandPath(strings.TrimSpace(overrides.Source))
		if err != nil || dir == "" {
			return services.Wrap(services.ErrConfiguration, "cli", "watch", "source directory is required", err)
		}

		s, err := newSession(cmd.Context(), ctx, base, runPlan{action: jobfile.ActionProcess, overrides: overrides})
		if err != nil {
			return err
		}
		defer s.Close()

		// Outputs never carry the .TiVo extension, so the watcher cannot
		// pick up its own artifacts.
		w := watch.New(dir, time.Duration(s.cfg.Watch.SettleSeconds)*time.Second,
			func(runCtx context.Context, path string) {
				summary, err := s.runner.Run(runCtx, batch.FileSource(path))
				if err != nil {
					if errors.Is(err, batch.ErrLocked) {
						logging.WarnWithContext(s.logger, "run lock held; recording left for next change", "watch_warning",
							logging.String("path", path))
						return
					}
					s.logger.Error("batch failed to start", logging.Error(err))
					return
				}
				rep := report.FromSummary(summary)
				if err := report.Write(s.cfg.ReportPath(), rep); err != nil {
					logging.WarnWithContext(s.logger, "report write failed", "report_warning", logging.Error(err))
				}
				if err := printReports(cmd, ctx, rep); err != nil {
					s.logger.Error("print report", logging.Error(err))
				}
			},
			watch.WithExtensions(batch.ProtectedExtensions...),
			watch.WithLogger(s.logger))
		return w.Run(cmd.Context())
	}
	return cmd
}
