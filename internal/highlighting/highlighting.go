package highlighting

import (
	"context"
	"encoding/json"

	"log/slog"

	"clipforge/internal/config"
	"clipforge/internal/highlight"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/transcript"
)

// Selector scores the transcript and persists the accepted highlight set.
// Re-running the stage replaces any clips from a previous attempt so the
// stored set always reflects one selection pass.
type Selector struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
}

// NewSelector constructs the highlight selection stage handler.
func NewSelector(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Selector {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "highlight"))
	}
	return &Selector{store: store, cfg: cfg, logger: stageLogger}
}

func (s *Selector) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, s.logger)
	stage.Report(job, stage.BandHighlight, "Selecting highlights", "Preparing selection", 0)
	job.ErrorMessage = ""
	if !stage.ArtifactExists(job.TranscriptFile) {
		return services.Wrap(services.ErrValidation, "highlighting", "validate inputs",
			"Transcript artifact is missing; re-run transcription", nil)
	}
	logger.Info("starting highlight preparation", logging.String("transcript_file", job.TranscriptFile))
	return nil
}

func (s *Selector) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, s.logger)

	document, err := transcript.Load(job.TranscriptFile)
	if err != nil {
		return services.Wrap(services.ErrValidation, "highlighting", "load transcript",
			"Transcript artifact is unreadable", err)
	}
	if job.MediaDuration > 0 {
		document.Duration = job.MediaDuration
	}

	stage.Report(job, stage.BandHighlight, "Selecting highlights", "Scoring candidate windows", 0.2)
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return err
	}

	highlights, err := highlight.Generate(ctx, document, highlight.OptionsFromConfig(s.cfg))
	if err != nil {
		return err
	}
	if len(highlights) == 0 {
		return services.Wrap(services.ErrValidation, "highlighting", "select clips",
			"No clip-length window found; the transcript is too short or too sparse", nil)
	}

	// Selection replaces wholesale so a retry never mixes two passes.
	if _, err := s.store.DeleteClipsByJob(ctx, job.ID); err != nil {
		return err
	}

	stage.Report(job, stage.BandHighlight, "Selecting highlights", "Persisting selections", 0.8)
	topScore := 0.0
	for _, item := range highlights {
		if item.Score > topScore {
			topScore = item.Score
		}
		metadata, err := json.Marshal(item.Metadata)
		if err != nil {
			return services.Wrap(services.ErrValidation, "highlighting", "encode metadata",
				"Failed to encode clip metadata", err)
		}
		clip := &queue.Clip{
			JobID:        job.ID,
			StartSec:     item.Start,
			EndSec:       item.End,
			Score:        item.Score,
			Title:        item.Title,
			Snippet:      item.Snippet,
			MetadataJSON: string(metadata),
		}
		if err := s.store.CreateClip(ctx, clip); err != nil {
			return err
		}
	}

	stage.Report(job, stage.BandHighlight, "Selecting highlights", "Highlights ready", 1)
	logger.Info("highlight selection complete",
		logging.Int("clips", len(highlights)),
		logging.Float64("top_score", topScore),
	)
	return nil
}

func (s *Selector) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("highlight")
}

var _ stage.Handler = (*Selector)(nil)
