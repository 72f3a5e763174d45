package stage

import (
	"context"

	"clipforge/internal/queue"
)

// Handler describes the contract the workflow manager needs from each job
// stage. Prepare validates inputs and may short-circuit work whose artifact
// already exists; Execute performs the stage.
type Handler interface {
	Prepare(context.Context, *queue.Job) error
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}

// RenderHandler is the render-queue counterpart of Handler.
type RenderHandler interface {
	Prepare(context.Context, *queue.Render) error
	Execute(context.Context, *queue.Render) error
	HealthCheck(context.Context) Health
}
