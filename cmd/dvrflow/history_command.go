package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dvrflow/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var runID string
	var pruneDays int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs, or the items of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if pruneDays > 0 {
				removed, err := store.Prune(cmd.Context(), time.Now().AddDate(0, 0, -pruneDays))
				if err != nil {
					return fmt.Errorf("prune history: %w", err)
				}
				fmt.Fprintf(out, "Pruned %d run(s) older than %d days\n", removed, pruneDays)
				return nil
			}

			if runID != "" {
				items, err := store.Items(cmd.Context(), runID)
				if err != nil {
					return fmt.Errorf("load run items: %w", err)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintf(out, "Run %s has no recorded items\n", runID)
					return nil
				}
				fmt.Fprintln(out, renderItemsTable(items))
				return nil
			}

			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("load runs: %w", err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet")
				return nil
			}
			fmt.Fprintln(out, renderRunsTable(runs))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show the items of one run")
	cmd.Flags().IntVar(&pruneDays, "prune-days", 0, "Delete runs that started more than this many days ago")
	return cmd
}

func renderRunsTable(runs []history.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		state := "running"
		if run.FinishedAt != nil {
			state = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
		}
		if run.Canceled {
			state = "canceled"
		}
		rows = append(rows, []string{
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Mode,
			run.Source,
			strconv.Itoa(run.Succeeded),
			strconv.Itoa(run.Skipped),
			strconv.Itoa(run.Failed),
			state,
		})
	}
	return renderTable(
		[]string{"Run", "Started", "Mode", "Source", "OK", "Skipped", "Failed", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	)
}

func renderItemsTable(items []history.ItemRecord) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		label := item.Title
		if item.EpisodeTitle != "" {
			label += " - " + item.EpisodeTitle
		}
		detail := item.FinalPath
		if item.Status == "failed" {
			detail = item.FailedStage + ": " + item.ErrorKind
		}
		rows = append(rows, []string{label, item.Status, detail})
	}
	return renderTable([]string{"Recording", "Status", "Detail"}, rows, nil)
}
