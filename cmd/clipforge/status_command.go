package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"clipforge/internal/config"
	"clipforge/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()

				pid, running := daemonPID(cfg)
				fmt.Fprintf(out, "Daemon running: %s\n", yesNo(running))
				if running {
					fmt.Fprintf(out, "Daemon PID: %d\n", pid)
				}
				fmt.Fprintf(out, "Data directory: %s\n", cfg.Paths.DataDir)
				fmt.Fprintf(out, "Watch directory: %s\n", watchDirLabel(cfg))

				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Jobs: %d total, %d pending, %d processing, %d completed, %d failed, %d cancelled\n",
					health.Total, health.Pending, health.Processing,
					health.Completed, health.Failed, health.Cancelled)

				stats, err := store.JobStats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) > 0 {
					rows := make([][]string, 0, len(stats))
					for _, status := range queue.AllStatuses() {
						count, ok := stats[status]
						if !ok {
							continue
						}
						rows = append(rows, []string{status.StageKey(), strconv.Itoa(count)})
					}
					fmt.Fprintln(out, renderTable(
						[]string{"Stage", "Jobs"},
						rows,
						[]columnAlignment{alignLeft, alignRight},
					))
				}

				renders, err := store.ListRenders(cmd.Context())
				if err != nil {
					return err
				}
				active := 0
				for _, item := range renders {
					if !item.IsTerminal() {
						active++
					}
				}
				fmt.Fprintf(out, "Renders: %d total, %d active\n", len(renders), active)
				return nil
			})
		},
	}
}

// daemonPID reads the daemon's PID file and verifies the process still
// exists. A stale file from a crashed daemon reports not running.
func daemonPID(cfg *config.Config) (int, bool) {
	raw, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "clipforge.pid"))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	return pid, true
}

func watchDirLabel(cfg *config.Config) string {
	if strings.TrimSpace(cfg.Paths.WatchDir) == "" {
		return "(disabled)"
	}
	return cfg.Paths.WatchDir
}
