package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
)

// settleDelay is how long a watched file must stop growing before it is
// considered fully written and safe to enqueue.
var settleDelay = 2 * time.Second

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".mov":  {},
	".webm": {},
	".avi":  {},
	".m4v":  {},
}

// Watcher observes the configured watch directory and enqueues an upload job
// for every video file dropped there. Files are enqueued once they stop
// growing; duplicate admission is left to the queue store.
type Watcher struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewWatcher constructs a watch-directory ingester.
func NewWatcher(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Watcher {
	componentLogger := logger
	if componentLogger != nil {
		componentLogger = componentLogger.With(logging.String("component", "ingest"))
	}
	return &Watcher{
		store:   store,
		cfg:     cfg,
		logger:  componentLogger,
		pending: make(map[string]*time.Timer),
	}
}

// Start begins watching. It returns immediately; events are handled on a
// background goroutine until Stop or context cancellation. A missing or
// unset watch directory disables ingestion without error.
func (w *Watcher) Start(ctx context.Context) error {
	dir := strings.TrimSpace(w.cfg.Paths.WatchDir)
	if dir == "" {
		w.logger.Info("watch directory not configured, ingestion disabled")
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := notifier.Add(dir); err != nil {
		notifier.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	// Files already sitting in the directory are picked up on startup.
	w.sweepExisting(runCtx, dir)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer notifier.Close()
		w.run(runCtx, notifier)
	}()

	w.logger.Info("watching for uploads", logging.String("dir", dir))
	return nil
}

// Stop halts watching and waits for in-flight enqueues to finish.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context, notifier *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-notifier.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-notifier.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) sweepExisting(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("initial watch sweep failed", logging.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.schedule(ctx, filepath.Join(dir, entry.Name()))
	}
}

// schedule arms (or re-arms) the settle timer for a path. Every write event
// pushes the timer back, so the file is enqueued only after it stops growing.
func (w *Watcher) schedule(ctx context.Context, path string) {
	if !isVideoFile(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Reset(settleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.enqueue(ctx, path)
	})
}

func (w *Watcher) enqueue(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return
	}

	job, err := w.store.NewJob(ctx, queue.SourceUpload, path)
	if err != nil {
		if errors.Is(err, queue.ErrDuplicateJob) {
			w.logger.Info("upload already queued", logging.String("path", path))
			return
		}
		w.logger.Error("failed to enqueue upload", logging.String("path", path), logging.Error(err))
		return
	}
	w.logger.Info("upload enqueued",
		logging.Int64("job_id", job.ID),
		logging.String("path", path),
	)
}

func isVideoFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(base))]
	return ok
}
