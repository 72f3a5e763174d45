package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"log/slog"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"clipforge/internal/acquire"
	"clipforge/internal/clipping"
	"clipforge/internal/config"
	"clipforge/internal/highlighting"
	"clipforge/internal/ingest"
	"clipforge/internal/logging"
	"clipforge/internal/normalize"
	"clipforge/internal/queue"
	"clipforge/internal/render"
	"clipforge/internal/transcribing"
	"clipforge/internal/workflow"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Daemon management",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the clipforge daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd, ctx)
		},
	}

	daemonCmd.AddCommand(runCmd)
	return daemonCmd
}

func runDaemonProcess(cmd *cobra.Command, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.LogDir, "clipforge.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another clipforge daemon is already running")
	}
	defer lock.Unlock()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "clipforge.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	manager := workflow.NewManager(cfg, store, logger)
	registerStages(manager, cfg, store, logger)

	watcher := ingest.NewWatcher(cfg, store, logger)
	if err := watcher.Start(signalCtx); err != nil {
		logger.Warn("watch directory unavailable", logging.Error(err))
	}
	defer watcher.Stop()

	if err := manager.Start(signalCtx); err != nil {
		return fmt.Errorf("start workflow manager: %w", err)
	}

	logger.Info("clipforge daemon started",
		logging.Int("workers", cfg.Workflow.Workers),
		logging.String("data_dir", cfg.Paths.DataDir),
	)
	<-signalCtx.Done()
	logger.Info("clipforge daemon shutting down")
	manager.Stop()
	return nil
}

func registerStages(mgr *workflow.Manager, cfg *config.Config, store *queue.Store, logger *slog.Logger) {
	mgr.ConfigureStages(workflow.StageSet{
		Acquirer:    acquire.NewAcquirer(cfg, store, logger),
		Normalizer:  normalize.NewNormalizer(cfg, store, logger),
		Transcriber: transcribing.NewTranscriber(cfg, store, logger),
		Highlighter: highlighting.NewSelector(cfg, store, logger),
		Clipper:     clipping.NewFinisher(cfg, store, logger),
	})
	mgr.ConfigureRenderer(render.NewRenderer(cfg, store, logger))
}

func writePIDFile(path string) error {
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
