package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/studiolapse/studiolapse-agent/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render a project into a timelapse",
}

var exportPrepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Snapshot a project into the pending export slot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, _ := cmd.Flags().GetInt("duration")

		return withApp(func(ctx context.Context, a *app) error {
			job, err := prepare(ctx, cmd, a, duration)
			if err != nil {
				return err
			}
			printJob(cmd, job)
			return nil
		})
	},
}

var exportRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pending export, preparing it first when --duration is set",
	Long: `Run the pending export and wait for the encode to finish.

With --duration the project (--project or the selected one) is snapshotted
first, replacing any pending export. Without it the pending export is run
as-is, which retries a failed attempt.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, _ := cmd.Flags().GetInt("duration")

		return withApp(func(ctx context.Context, a *app) error {
			if duration != 0 {
				if _, err := prepare(ctx, cmd, a, duration); err != nil {
					return err
				}
			}

			a.executor.Subscribe(func(from, to export.State, report export.Report) {
				switch to {
				case export.StatePreparing:
					fmt.Fprintln(cmd.OutOrStdout(), "probing clips...")
				case export.StateExporting:
					fmt.Fprintf(cmd.OutOrStdout(), "encoding %d clips (%s of footage) at %sx...\n",
						report.ClipCount, formatSeconds(report.TotalSourceSec), export.FormatFactor(report.SpeedFactor))
				}
			})

			report, err := a.executor.Run(ctx)
			printReport(cmd, &report)
			if err != nil {
				if errors.Is(err, export.ErrPermissionDenied) {
					return fmt.Errorf("%w (set %s or library.access in the config)", err, "STUDIOLAPSE_LIBRARY_ACCESS")
				}
				return err
			}
			return nil
		})
	},
}

var exportStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the pending export and the last attempt",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			job, found, err := a.pending.Load(ctx)
			if err != nil {
				return err
			}
			if found {
				fmt.Fprintln(cmd.OutOrStdout(), "pending export:")
				printJob(cmd, job)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending export")
			}

			report, err := a.executor.LastReport(ctx)
			if err != nil {
				return err
			}
			if report != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "\nlast attempt:")
				printReport(cmd, report)
			}
			return nil
		})
	},
}

var exportDismissCmd = &cobra.Command{
	Use:   "dismiss",
	Short: "Clear the pending export",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.executor.Dismiss(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "pending export dismissed")
			return nil
		})
	},
}

var exportRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded export attempts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		return withApp(func(ctx context.Context, a *app) error {
			runs, err := a.runs.ListRuns(ctx, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tPROJECT\tTARGET\tCLIPS\tFACTOR\tSTATUS\tSTARTED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%ds\t%d\t%sx\t%s\t%s\n",
					r.ID[:8], r.ProjectName, r.TargetDurationSec, r.ClipCount,
					export.FormatFactor(r.SpeedFactor), r.Status, humanize.Time(r.CreatedAt))
			}
			return tw.Flush()
		})
	},
}

func prepare(ctx context.Context, cmd *cobra.Command, a *app, duration int) (*export.Job, error) {
	id, err := projectOrSelected(ctx, cmd, a)
	if err != nil {
		return nil, err
	}
	p, err := a.projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.executor.Prepare(ctx, p, duration)
}

func printJob(cmd *cobra.Command, job *export.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  project:  %s (%s)\n", job.ProjectName, job.ProjectID)
	fmt.Fprintf(out, "  target:   %ds\n", job.TargetDurationSec)
	fmt.Fprintf(out, "  clips:    %d\n", len(job.ClipURIs))
	fmt.Fprintf(out, "  prepared: %s\n", humanize.Time(job.CreatedAt))
}

func printReport(cmd *cobra.Command, r *export.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  run:      %s\n", r.RunID)
	fmt.Fprintf(out, "  state:    %s\n", r.State)
	if r.ProjectName != "" {
		fmt.Fprintf(out, "  project:  %s\n", r.ProjectName)
	}
	if r.ClipCount > 0 {
		fmt.Fprintf(out, "  footage:  %d clips, %s at %sx\n", r.ClipCount, formatSeconds(r.TotalSourceSec), export.FormatFactor(r.SpeedFactor))
	}
	if r.OutputPath != "" {
		size := ""
		if info, err := os.Stat(r.OutputPath); err == nil {
			size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
		}
		fmt.Fprintf(out, "  output:   %s%s\n", r.OutputPath, size)
	}
	if r.TimelinePath != "" {
		fmt.Fprintf(out, "  timeline: %s\n", r.TimelinePath)
	}
	if r.Asset != nil {
		fmt.Fprintf(out, "  album:    %s\n", r.Asset.Path)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "  warning:  %s\n", w)
	}
	if r.Diagnostic != "" {
		fmt.Fprintf(out, "  diagnostic:\n    %s\n", strings.ReplaceAll(r.Diagnostic, "\n", "\n    "))
	}
}

func formatSeconds(sec float64) string {
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	whole := int(sec)
	return fmt.Sprintf("%dm%02ds", whole/60, whole%60)
}

func init() {
	for _, c := range []*cobra.Command{exportPrepareCmd, exportRunCmd} {
		c.Flags().String("project", "", "Project ID (defaults to the selected project)")
	}
	exportPrepareCmd.Flags().IntP("duration", "d", 30, "Target length in seconds (20, 30, 45 or 60)")
	exportRunCmd.Flags().IntP("duration", "d", 0, "Prepare with this target length before running")
	exportRunsCmd.Flags().Int("limit", 20, "Maximum runs to list")

	exportCmd.AddCommand(exportPrepareCmd)
	exportCmd.AddCommand(exportRunCmd)
	exportCmd.AddCommand(exportStatusCmd)
	exportCmd.AddCommand(exportDismissCmd)
	exportCmd.AddCommand(exportRunsCmd)
}
