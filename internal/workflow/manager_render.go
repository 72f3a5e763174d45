package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
)

const renderStageLabel = "Rendering clip"

func (m *Manager) processRender(ctx context.Context, workerLogger *slog.Logger, render *queue.Render) error {
	claimed, err := m.store.ClaimRender(ctx, render.ID, queue.StatusPending, queue.StatusRendering, renderStageLabel)
	if err != nil {
		m.setLastError(err)
		workerLogger.Error("failed to claim render", logging.Error(err))
		return err
	}
	if !claimed {
		return nil
	}

	render, err = m.store.GetRender(ctx, render.ID)
	if err != nil || render == nil {
		if err == nil {
			err = fmt.Errorf("render vanished after claim")
		}
		m.setLastError(err)
		return err
	}

	stageCtx := services.WithRenderID(ctx, render.ID)
	stageCtx = services.WithStage(stageCtx, "render")
	stageCtx = services.WithRequestID(stageCtx, uuid.NewString())
	stageLogger := logging.WithContext(stageCtx, workerLogger)

	if render.CancelRequested {
		render.SetCancelled()
		if err := m.store.UpdateRender(stageCtx, render); err != nil {
			return err
		}
		stageLogger.Info("render cancelled before start",
			logging.String(logging.FieldEventType, "stage_cancelled"),
		)
		return nil
	}

	return m.executeRender(stageCtx, stageLogger, render)
}

func (m *Manager) executeRender(ctx context.Context, stageLogger *slog.Logger, render *queue.Render) error {
	stageStart := time.Now()
	stageLogger.Info("render started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String(logging.FieldClipID, render.ClipID),
	)

	if err := m.renderer.Prepare(ctx, render); err != nil {
		m.handleRenderFailure(ctx, render, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.UpdateRender(ctx, render); err != nil {
		wrapped := fmt.Errorf("persist render preparation: %w", err)
		stageLogger.Error("failed to persist render preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeRenderWithHeartbeat(ctx, render)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			if cancelled, _ := m.store.RenderCancelRequested(context.WithoutCancel(ctx), render.ID); cancelled {
				render.SetCancelled()
				if err := m.store.UpdateRender(context.WithoutCancel(ctx), render); err != nil {
					stageLogger.Error("failed to persist render cancellation", logging.Error(err))
				}
				stageLogger.Info("render cancelled",
					logging.String(logging.FieldEventType, "stage_cancelled"),
				)
				return nil
			}
			stageLogger.Debug("render interrupted by shutdown")
			return execErr
		}
		m.handleRenderFailure(ctx, render, execErr)
		m.setLastError(execErr)
		return execErr
	}

	render.Status = queue.StatusCompleted
	render.LastHeartbeat = nil
	render.SetProgress("Completed", "Export ready", 100)
	if err := m.store.UpdateRender(ctx, render); err != nil {
		wrapped := fmt.Errorf("persist render result: %w", err)
		stageLogger.Error("failed to persist render result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	stageLogger.Info("render completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("output", render.OutputPath),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return nil
}

func (m *Manager) executeRenderWithHeartbeat(ctx context.Context, render *queue.Render) error {
	execCtx, execCancel := context.WithCancel(ctx)
	defer execCancel()

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartRenderLoop(hbCtx, &hbWG, render.ID, execCancel)

	execErr := m.renderer.Execute(execCtx, render)
	hbCancel()
	hbWG.Wait()

	if execErr != nil && errors.Is(execErr, context.Canceled) && ctx.Err() == nil {
		return context.Canceled
	}
	return execErr
}

func (m *Manager) handleRenderFailure(ctx context.Context, render *queue.Render, stageErr error) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(m.logger, "workflow-manager"))

	message := classifyFailure("render", stageErr)
	render.SetFailed(message)

	logger.Error("render failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_message", message),
		logging.Error(stageErr),
	)

	if err := m.store.UpdateRender(context.WithoutCancel(ctx), render); err != nil {
		logger.Error("failed to persist render failure", logging.Error(err))
	}
}
