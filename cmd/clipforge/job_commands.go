package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"clipforge/internal/config"
	"clipforge/internal/queue"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Manage queued jobs",
	}

	jobCmd.AddCommand(newJobAddCommand(ctx))
	jobCmd.AddCommand(newJobListCommand(ctx))
	jobCmd.AddCommand(newJobShowCommand(ctx))
	jobCmd.AddCommand(newJobRetryCommand(ctx))
	jobCmd.AddCommand(newJobCancelCommand(ctx))
	jobCmd.AddCommand(newJobRemoveCommand(ctx))
	return jobCmd
}

func newJobAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <url-or-path>",
		Short: "Queue a source video for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				source := strings.TrimSpace(args[0])
				sourceType := queue.SourceUpload
				if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
					sourceType = queue.SourceYouTube
				}
				job, err := store.NewJob(cmd.Context(), sourceType, source)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job #%d (%s): %s\n", job.ID, job.SourceType, job.Title)
				return nil
			})
		},
	}
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				var statuses []queue.Status
				if strings.TrimSpace(statusFlag) != "" {
					status, ok := queue.ParseStatus(statusFlag)
					if !ok {
						return fmt.Errorf("unknown status %q", statusFlag)
					}
					statuses = append(statuses, status)
				}
				jobs, err := store.ListJobs(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty.")
					return nil
				}

				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						string(job.Status),
						fmt.Sprintf("%.0f%%", job.ProgressPercent),
						job.Title,
						formatDuration(job.MediaDuration),
						job.ProgressMessage,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Status", "Progress", "Title", "Duration", "Message"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by job status")
	return cmd
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job with its selected clips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				job, err := store.GetJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job #%d not found", id)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job #%d  %s\n", job.ID, job.Title)
				fmt.Fprintf(out, "  Status:    %s (%.0f%%)\n", job.Status, job.ProgressPercent)
				fmt.Fprintf(out, "  Source:    %s (%s)\n", job.Source(), job.SourceType)
				if job.MediaDuration > 0 {
					fmt.Fprintf(out, "  Duration:  %s\n", formatDuration(job.MediaDuration))
				}
				if job.ProgressMessage != "" {
					fmt.Fprintf(out, "  Progress:  %s\n", job.ProgressMessage)
				}
				if job.ErrorMessage != "" {
					fmt.Fprintf(out, "  Error:     %s\n", job.ErrorMessage)
				}

				clips, err := store.ClipsByJob(cmd.Context(), job.ID)
				if err != nil {
					return err
				}
				if len(clips) == 0 {
					fmt.Fprintln(out, "  No clips selected yet.")
					return nil
				}

				rows := make([][]string, 0, len(clips))
				for _, clip := range clips {
					rows = append(rows, []string{
						clip.ID,
						fmt.Sprintf("%.0f", clip.Score),
						formatRange(clip.StartSec, clip.EndSec),
						clip.Title,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Clip", "Score", "Window", "Title"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newJobRetryCommand(ctx *commandContext) *cobra.Command {
	var allFlag bool

	cmd := &cobra.Command{
		Use:   "retry [id...]",
		Short: "Requeue failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !allFlag && len(args) == 0 {
				return fmt.Errorf("provide job ids or --all")
			}
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseJobID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				count, err := store.RetryFailedJobs(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d job(s).\n", count)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&allFlag, "all", false, "Retry every failed job")
	return cmd
}

func newJobCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or in-flight job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				requested, err := store.RequestJobCancel(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !requested {
					return fmt.Errorf("job #%d cannot be cancelled in its current state", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for job #%d.\n", id)
				return nil
			})
		},
	}
}

func newJobRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a job and all of its clips and renders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				removed, err := store.RemoveJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("job #%d not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed job #%d.\n", id)
				return nil
			})
		},
	}
}

func parseJobID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", value)
	}
	return id, nil
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	total := int(seconds)
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func formatRange(start, end float64) string {
	return fmt.Sprintf("%s - %s", formatClock(start), formatClock(end))
}

func formatClock(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
