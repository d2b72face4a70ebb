package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"dvrflow/internal/config"
	"dvrflow/internal/deps"
	"dvrflow/internal/history"
	"dvrflow/internal/preflight"
	"dvrflow/internal/report"
)

type statusView struct {
	ConfigPath string             `json:"config_path"`
	Stages     map[string]bool    `json:"stages"`
	Tools      []deps.Status      `json:"tools"`
	Checks     []preflight.Result `json:"checks"`
	History    map[string]int     `json:"history,omitempty"`
	LastRun    *report.Report     `json:"last_run,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configured stages, tool availability and service readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			view := statusView{
				ConfigPath: ctx.configPath,
				Stages:     stageStates(cfg),
				Tools:      preflight.CheckSystemDeps(cmd.Context(), cfg),
				Checks:     preflight.RunAll(cmd.Context(), cfg),
			}
			if store, err := history.Open(cfg.HistoryPath()); err == nil {
				view.History, _ = store.StatusCounts(cmd.Context())
				_ = store.Close()
			}
			if last, err := report.Read(cfg.ReportPath()); err == nil {
				view.LastRun = &last
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, view)
			}
			out := cmd.OutOrStdout()
			renderStatus(out, view, shouldColorize(out))
			if len(preflight.MissingRequired(view.Tools)) > 0 {
				return fmt.Errorf("required tools are missing")
			}
			return nil
		},
	}
}

func stageStates(cfg *config.Config) map[string]bool {
	return map[string]bool{
		"metadata":  cfg.TVDBCredentialsSet(),
		"decrypt":   cfg.DecryptEnabled(),
		"detect":    cfg.DetectEnabled(),
		"transcode": cfg.TranscodeEnabled(),
	}
}

func renderStatus(out io.Writer, view statusView, colorize bool) {
	lines := renderSectionHeader("Configuration", colorize)
	path := view.ConfigPath
	if path == "" {
		path = "defaults"
	}
	lines = append(lines, renderStatusLine("Config", statusInfo, path, colorize))
	names := make([]string, 0, len(view.Stages))
	for name := range view.Stages {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		kind, msg := statusInfo, "disabled"
		if view.Stages[name] {
			kind, msg = statusOK, "enabled"
		}
		lines = append(lines, renderStatusLine(strings.ToUpper(name[:1])+name[1:], kind, msg, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Tools", colorize)...)
	for _, tool := range view.Tools {
		kind := statusOK
		msg := tool.Command
		if tool.Detail != "" {
			msg = strings.TrimSpace(tool.Command + " " + "(" + tool.Detail + ")")
		}
		if !tool.Available {
			kind = statusError
			if tool.Optional {
				kind = statusWarn
			}
			msg = tool.Detail
		}
		lines = append(lines, renderStatusLine(tool.Name, kind, msg, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Readiness", colorize)...)
	for _, check := range view.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}

	if len(view.History) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("History", colorize)...)
		for _, status := range []string{"succeeded", "skipped", "failed"} {
			lines = append(lines, renderStatusLine(status, itemStatusKind(status), fmt.Sprintf("%d", view.History[status]), colorize))
		}
	}
	if view.LastRun != nil {
		last := view.LastRun
		kind := statusOK
		if last.Failed > 0 || last.Canceled {
			kind = statusError
		}
		lines = append(lines, renderStatusLine("Last run", kind,
			fmt.Sprintf("%s: %d ok, %d skipped, %d failed", last.Source, last.Succeeded, last.Skipped, last.Failed), colorize))
	}

	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}
