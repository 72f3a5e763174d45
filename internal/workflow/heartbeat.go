package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"clipforge/internal/logging"
	"clipforge/internal/queue"
)

// HeartbeatMonitor manages job heartbeats and stale work reclamation.
type HeartbeatMonitor struct {
	store             *queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStale returns jobs and renders whose heartbeats expired to pending.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context, logger *slog.Logger) error {
	if h.heartbeatTimeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	jobs, err := h.store.ReclaimStaleJobs(ctx, cutoff)
	if err != nil {
		return err
	}
	renders, err := h.store.ReclaimStaleRenders(ctx, cutoff)
	if err != nil {
		return err
	}
	if jobs > 0 || renders > 0 {
		logger.Info("reclaimed stale work",
			logging.Int64("jobs", jobs),
			logging.Int64("renders", renders),
		)
	}
	return nil
}

// StartJobLoop keeps a job's heartbeat fresh and honors cancel requests until
// the context ends. When a cancel request appears, cancelWork stops the stage.
func (h *HeartbeatMonitor) StartJobLoop(ctx context.Context, wg *sync.WaitGroup, jobID int64, cancelWork func()) {
	defer wg.Done()
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateJobHeartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
			cancelled, err := h.store.JobCancelRequested(ctx, jobID)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Warn("cancel flag check failed", logging.Error(err))
				}
				continue
			}
			if cancelled {
				logger.Info("cancel requested, stopping stage", logging.Int64(logging.FieldJobID, jobID))
				cancelWork()
				return
			}
		}
	}
}

// StartRenderLoop is the render counterpart of StartJobLoop.
func (h *HeartbeatMonitor) StartRenderLoop(ctx context.Context, wg *sync.WaitGroup, renderID string, cancelWork func()) {
	defer wg.Done()
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateRenderHeartbeat(ctx, renderID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
			cancelled, err := h.store.RenderCancelRequested(ctx, renderID)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Warn("cancel flag check failed", logging.Error(err))
				}
				continue
			}
			if cancelled {
				logger.Info("cancel requested, stopping render", logging.String(logging.FieldRenderID, renderID))
				cancelWork()
				return
			}
		}
	}
}
