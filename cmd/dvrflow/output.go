package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dvrflow/internal/report"
)

// printReports writes reports as JSON or as per-item lines plus a summary
// table.
func printReports(cmd *cobra.Command, cc *commandContext, reports ...report.Report) error {
	out := cmd.OutOrStdout()
	if cc.jsonOutput() {
		return report.Encode(out, reports...)
	}
	colorize := shouldColorize(out)
	for i, rep := range reports {
		if i > 0 {
			fmt.Fprintln(out)
		}
		printReport(out, rep, colorize)
	}
	return nil
}

func printReport(out io.Writer, rep report.Report, colorize bool) {
	for _, line := range renderSectionHeader(fmt.Sprintf("%s (%s)", rep.Source, rep.Mode), colorize) {
		fmt.Fprintln(out, line)
	}
	if len(rep.Items) == 0 {
		fmt.Fprintln(out, "No recordings matched")
	}
	for _, item := range rep.Items {
		fmt.Fprintln(out, renderStatusLine(itemLabel(item), itemStatusKind(item.Status), itemMessage(item), colorize))
		for _, warning := range item.Warnings {
			fmt.Fprintln(out, renderStatusLine("", statusWarn, warning, colorize))
		}
	}

	rows := [][]string{{
		strconv.Itoa(rep.Succeeded),
		strconv.Itoa(rep.Skipped),
		strconv.Itoa(rep.Failed),
		yesNo(rep.Canceled),
		rep.FinishedAt.Sub(rep.StartedAt).Round(time.Second).String(),
	}}
	fmt.Fprintln(out, renderTable(
		[]string{"Succeeded", "Skipped", "Failed", "Canceled", "Duration"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignRight},
	))
}

func itemLabel(item report.Item) string {
	switch {
	case item.Title != "" && item.EpisodeTitle != "":
		return item.Title + " - " + item.EpisodeTitle
	case item.Title != "":
		return item.Title
	default:
		return item.Source
	}
}

func itemMessage(item report.Item) string {
	switch item.Status {
	case "failed":
		msg := item.Error
		if item.FailedStage != "" {
			msg = item.FailedStage + ": " + msg
		}
		if diag := firstLine(item.Diagnostics); diag != "" {
			msg += " (" + diag + ")"
		}
		return msg
	case "skipped":
		for _, stage := range item.Stages {
			if stage.Reason != "" {
				return stage.Reason
			}
		}
		return "nothing to do"
	default:
		if item.Path != "" {
			return item.Path
		}
		return item.Status
	}
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return strings.TrimSpace(line)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
