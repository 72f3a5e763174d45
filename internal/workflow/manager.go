package workflow

import (
	"log/slog"
	"sync"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/stage"
)

// StageSet bundles the concrete job stage handlers the manager orchestrates.
type StageSet struct {
	Acquirer    stage.Handler
	Normalizer  stage.Handler
	Transcriber stage.Handler
	Highlighter stage.Handler
	Clipper     stage.Handler
}

type pipelineStage struct {
	name             string
	label            string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
}

// Manager coordinates queue processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	pollInterval time.Duration

	heartbeat *HeartbeatMonitor

	stages             []pipelineStage
	stageByStart       map[queue.Status]pipelineStage
	statusOrder        []queue.Status
	processingStatuses []queue.Status

	renderer stage.RenderHandler

	mu      sync.RWMutex
	running bool
	cancel  func()
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}

// ConfigureStages registers the concrete stage handlers the workflow will run.
func (m *Manager) ConfigureStages(set StageSet) {
	var stages []pipelineStage
	if set.Acquirer != nil {
		stages = append(stages, pipelineStage{
			name:             "acquire",
			label:            "Acquiring source",
			handler:          set.Acquirer,
			startStatus:      queue.StatusPending,
			processingStatus: queue.StatusAcquiring,
			doneStatus:       queue.StatusAcquired,
		})
	}
	if set.Normalizer != nil {
		stages = append(stages, pipelineStage{
			name:             "normalize",
			label:            "Normalizing media",
			handler:          set.Normalizer,
			startStatus:      queue.StatusAcquired,
			processingStatus: queue.StatusNormalizing,
			doneStatus:       queue.StatusNormalized,
		})
	}
	if set.Transcriber != nil {
		stages = append(stages, pipelineStage{
			name:             "transcribe",
			label:            "Transcribing audio",
			handler:          set.Transcriber,
			startStatus:      queue.StatusNormalized,
			processingStatus: queue.StatusTranscribing,
			doneStatus:       queue.StatusTranscribed,
		})
	}
	if set.Highlighter != nil {
		stages = append(stages, pipelineStage{
			name:             "highlight",
			label:            "Selecting highlights",
			handler:          set.Highlighter,
			startStatus:      queue.StatusTranscribed,
			processingStatus: queue.StatusHighlighting,
			doneStatus:       queue.StatusHighlighted,
		})
	}
	if set.Clipper != nil {
		stages = append(stages, pipelineStage{
			name:             "clip",
			label:            "Cutting clips",
			handler:          set.Clipper,
			startStatus:      queue.StatusHighlighted,
			processingStatus: queue.StatusClipping,
			doneStatus:       queue.StatusCompleted,
		})
	}

	stageByStart := make(map[queue.Status]pipelineStage, len(stages))
	statusOrder := make([]queue.Status, 0, len(stages))
	processing := make([]queue.Status, 0, len(stages))
	for _, stg := range stages {
		stageByStart[stg.startStatus] = stg
		statusOrder = append(statusOrder, stg.startStatus)
		processing = append(processing, stg.processingStatus)
	}

	m.mu.Lock()
	m.stages = stages
	m.stageByStart = stageByStart
	m.statusOrder = statusOrder
	m.processingStatuses = processing
	m.mu.Unlock()
}

// ConfigureRenderer registers the render-queue handler.
func (m *Manager) ConfigureRenderer(handler stage.RenderHandler) {
	m.mu.Lock()
	m.renderer = handler
	m.mu.Unlock()
}

func (m *Manager) stageForStatus(status queue.Status) (pipelineStage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stg, ok := m.stageByStart[status]
	return stg, ok
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// LastError returns the most recent worker error, for diagnostics.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}
