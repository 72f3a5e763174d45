package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"clipforge/internal/logging"
	"clipforge/internal/queue"
)

// Start begins background processing: one reclaimer, the configured number of
// job workers, and one render worker when a renderer is registered.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.statusOrder) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := m.cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	renderer := m.renderer

	m.wg.Add(workers + 1)
	if renderer != nil {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	go m.runReclaimer(runCtx)
	for i := 0; i < workers; i++ {
		go m.runJobWorker(runCtx, i)
	}
	if renderer != nil {
		go m.runRenderWorker(runCtx)
	}
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	logger := logging.NewComponentLogger(m.logger, "workflow-reclaimer")

	interval := m.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.heartbeat.ReclaimStale(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("reclaim stale processing failed; stuck work may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) runJobWorker(ctx context.Context, index int) {
	defer m.wg.Done()
	logger := logging.NewComponentLogger(m.logger, fmt.Sprintf("workflow-worker-%d", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.NextJobForStatuses(ctx, m.statusOrder...)
		if err != nil {
			m.handleFetchError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForWorkOrShutdown(ctx)
			continue
		}

		if err := m.processJob(ctx, logger, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (m *Manager) runRenderWorker(ctx context.Context) {
	defer m.wg.Done()
	logger := logging.NewComponentLogger(m.logger, "workflow-render")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		render, err := m.store.NextRenderForStatuses(ctx, queue.StatusPending)
		if err != nil {
			m.handleFetchError(ctx, logger, err)
			continue
		}
		if render == nil {
			m.waitForWorkOrShutdown(ctx)
			continue
		}

		if err := m.processRender(ctx, logger, render); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (m *Manager) handleFetchError(ctx context.Context, logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.setLastError(err)
	logger.Error("failed to fetch next queue entry",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second):
	}
}

func (m *Manager) waitForWorkOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}
