package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dvrflow/internal/jobfile"
	"dvrflow/internal/report"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the full pipeline over a recording file or directory",
		Args:  cobra.NoArgs,
	}
	flags := bindOverrideFlags(cmd, groupSource|groupDecrypt|groupMetadata|groupDetect|groupTranscode)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return executeBatch(cmd, ctx, runPlan{action: jobfile.ActionProcess, overrides: flags.resolve(cmd)})
	}
	return cmd
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var downloadOnly bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download matching recordings from the DVR and process them",
		Long: "Download every recording whose title (and episode, when given) matches exactly.\n" +
			"Stages after the download run only when they are configured; --download-only stops after downloading.",
		Args: cobra.NoArgs,
	}
	flags := bindOverrideFlags(cmd, groupDevice|groupDecrypt|groupMetadata|groupDetect|groupTranscode)
	cmd.Flags().BoolVar(&downloadOnly, "download-only", false, "Stop once recordings are downloaded")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return executeBatch(cmd, ctx, runPlan{action: jobfile.ActionFetch, overrides: flags.resolve(cmd), downloadOnly: downloadOnly})
	}
	return cmd
}

func newStripCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strip",
		Short: "Decrypt .TiVo recordings without further processing",
		Args:  cobra.NoArgs,
	}
	flags := bindOverrideFlags(cmd, groupSource|groupDecrypt)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return executeBatch(cmd, ctx, runPlan{action: jobfile.ActionStrip, overrides: flags.resolve(cmd)})
	}
	return cmd
}

func executeBatch(cmd *cobra.Command, ctx *commandContext, plan runPlan) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	rep, err := runBatch(cmd.Context(), ctx, cfg, plan)
	if err != nil {
		return err
	}
	if err := printReports(cmd, ctx, rep); err != nil {
		return err
	}
	if !reportsOK(rep) {
		return errItemsFailed
	}
	return nil
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run YAML job files",
	}

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "run FILE",
		Short: "Run every job in FILE as its own batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			file, err := jobfile.Load(args[0])
			if err != nil {
				return err
			}
			// A job that cannot start is reported and the next job still runs.
			reports := make([]report.Report, 0, len(file.Jobs))
			for i, job := range file.Jobs {
				if cmd.Context().Err() != nil {
					break
				}
				action, overrides := job.Action()
				rep, err := runBatch(cmd.Context(), ctx, cfg, runPlan{action: action, overrides: overrides, label: job.Label(i)})
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", job.Label(i), err)
					continue
				}
				reports = append(reports, rep)
			}
			if err := printReports(cmd, ctx, reports...); err != nil {
				return err
			}
			if !reportsOK(reports...) || len(reports) < len(file.Jobs) {
				return errItemsFailed
			}
			return nil
		},
	})

	jobsCmd.AddCommand(&cobra.Command{
		Use:         "validate FILE",
		Short:       "Check a job file without running it",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := jobfile.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d job(s) valid\n", len(file.Jobs))
			return nil
		},
	})

	return jobsCmd
}
