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

func (m *Manager) processJob(ctx context.Context, workerLogger *slog.Logger, job *queue.Job) error {
	stg, ok := m.stageForStatus(job.Status)
	if !ok {
		workerLogger.Warn("no stage configured for status", logging.String("status", string(job.Status)))
		m.waitForWorkOrShutdown(ctx)
		return nil
	}

	// Atomic claim: another worker may have taken the job between fetch and
	// here, or a cancel may have landed.
	claimed, err := m.store.ClaimJob(ctx, job.ID, stg.startStatus, stg.processingStatus, stg.label)
	if err != nil {
		m.setLastError(err)
		workerLogger.Error("failed to claim job", logging.Error(err))
		return err
	}
	if !claimed {
		return nil
	}

	job, err = m.store.GetJob(ctx, job.ID)
	if err != nil || job == nil {
		if err == nil {
			err = fmt.Errorf("job vanished after claim")
		}
		m.setLastError(err)
		return err
	}

	stageCtx := services.WithJobID(ctx, job.ID)
	stageCtx = services.WithStage(stageCtx, stg.name)
	stageCtx = services.WithRequestID(stageCtx, uuid.NewString())
	stageLogger := logging.WithContext(stageCtx, workerLogger)

	if cancelled, cerr := m.finishCancelledJob(stageCtx, stageLogger, job); cerr != nil || cancelled {
		return cerr
	}

	return m.executeJobStage(stageCtx, stageLogger, stg, job)
}

func (m *Manager) executeJobStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, job *queue.Job) error {
	stageStart := time.Now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(stg.processingStatus)),
		logging.String("source", job.Source()),
	)

	if err := stg.handler.Prepare(ctx, job); err != nil {
		m.handleJobFailure(ctx, stg.name, job, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.UpdateJob(ctx, job); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(ctx, stg, job)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			if cancelled, _ := m.store.JobCancelRequested(context.WithoutCancel(ctx), job.ID); cancelled {
				job.SetCancelled()
				if err := m.store.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
					stageLogger.Error("failed to persist cancellation", logging.Error(err))
				}
				stageLogger.Info("stage cancelled",
					logging.String(logging.FieldEventType, "stage_cancelled"),
				)
				return nil
			}
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleJobFailure(ctx, stg.name, job, execErr)
		m.setLastError(execErr)
		return execErr
	}

	if job.Status == stg.processingStatus || job.Status == "" {
		job.Status = stg.doneStatus
	}
	job.LastHeartbeat = nil
	if job.Status == queue.StatusCompleted {
		job.SetProgress("Completed", "All clips ready", 100)
	}
	if err := m.store.UpdateJob(ctx, job); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(job.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return nil
}

// executeWithHeartbeat runs the stage while a sidecar goroutine refreshes the
// job heartbeat and watches the cancel flag. A cancel request cancels the
// stage context.
func (m *Manager) executeWithHeartbeat(ctx context.Context, stg pipelineStage, job *queue.Job) error {
	execCtx, execCancel := context.WithCancel(ctx)
	defer execCancel()

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartJobLoop(hbCtx, &hbWG, job.ID, execCancel)

	execErr := stg.handler.Execute(execCtx, job)
	hbCancel()
	hbWG.Wait()

	if execErr != nil && errors.Is(execErr, context.Canceled) && ctx.Err() == nil {
		// The sidecar cancelled us on request, not a daemon shutdown.
		return context.Canceled
	}
	return execErr
}

func (m *Manager) finishCancelledJob(ctx context.Context, logger *slog.Logger, job *queue.Job) (bool, error) {
	if !job.CancelRequested {
		return false, nil
	}
	job.SetCancelled()
	if err := m.store.UpdateJob(ctx, job); err != nil {
		return true, err
	}
	logger.Info("job cancelled before stage start",
		logging.String(logging.FieldEventType, "stage_cancelled"),
	)
	return true, nil
}

func (m *Manager) handleJobFailure(ctx context.Context, stageName string, job *queue.Job, stageErr error) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(m.logger, "workflow-manager"))

	message := classifyFailure(stageName, stageErr)
	job.SetFailed(message)

	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldStage, stageName),
		logging.String("error_message", message),
		logging.Bool("retryable", services.IsRetryable(stageErr)),
		logging.Error(stageErr),
	)

	if err := m.store.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}
}

func classifyFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return fmt.Sprintf("%s failed without error detail", stageName)
	}
	details := services.Details(stageErr)
	if details.Message != "" {
		return details.Message
	}
	return fmt.Sprintf("%s failed", stageName)
}
