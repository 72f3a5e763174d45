package workflow

import (
	"context"

	"clipforge/internal/queue"
	"clipforge/internal/stage"
)

// Health aggregates stage readiness with queue counts for diagnostics.
type Health struct {
	Stages []stage.Health
	Queue  queue.HealthSummary
}

// Health runs every registered handler's health check and snapshots the queue.
func (m *Manager) Health(ctx context.Context) (Health, error) {
	m.mu.RLock()
	stages := make([]pipelineStage, len(m.stages))
	copy(stages, m.stages)
	renderer := m.renderer
	m.mu.RUnlock()

	out := Health{}
	for _, stg := range stages {
		out.Stages = append(out.Stages, stg.handler.HealthCheck(ctx))
	}
	if renderer != nil {
		out.Stages = append(out.Stages, renderer.HealthCheck(ctx))
	}

	summary, err := m.store.Health(ctx)
	if err != nil {
		return out, err
	}
	out.Queue = summary
	return out, nil
}
