package normalize

import (
	"context"
	"fmt"
	"path/filepath"

	"log/slog"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/services/ffmpeg"
	"clipforge/internal/stage"
)

// Normalizer rewrites the raw source as a uniform MP4 so every later stage
// works against predictable codecs and container layout.
type Normalizer struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	media  ffmpeg.Service
}

// NewNormalizer constructs the normalization stage handler with default dependencies.
func NewNormalizer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Normalizer {
	media := ffmpeg.NewCLI(ffmpeg.WithBinaries(cfg.FFmpegBinary(), cfg.FFprobeBinary()))
	return NewNormalizerWithDependencies(cfg, store, logger, media)
}

// NewNormalizerWithDependencies allows injecting collaborators (used in tests).
func NewNormalizerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, media ffmpeg.Service) *Normalizer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "normalize"))
	}
	return &Normalizer{store: store, cfg: cfg, logger: stageLogger, media: media}
}

func (n *Normalizer) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, n.logger)
	stage.Report(job, stage.BandNormalize, "Normalizing media", "Preparing normalization", 0)
	job.ErrorMessage = ""
	if !stage.ArtifactExists(job.RawFile) {
		return services.Wrap(services.ErrValidation, "normalizing", "validate inputs",
			"Raw media artifact is missing; re-run acquisition", nil)
	}
	logger.Info("starting normalization preparation", logging.String("raw_file", job.RawFile))
	return nil
}

func (n *Normalizer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, n.logger)

	if stage.ArtifactExists(job.NormalizedFile) {
		logger.Info("normalized artifact already present, skipping",
			logging.String("normalized_file", job.NormalizedFile))
		stage.Report(job, stage.BandNormalize, "Normalizing media", "Media ready", 1)
		return nil
	}

	destination := filepath.Join(n.cfg.NormalizedDir(), fmt.Sprintf("job-%d.mp4", job.ID))
	err := n.media.Normalize(ctx, job.RawFile, destination, func(update ffmpeg.ProgressUpdate) {
		stage.Report(job, stage.BandNormalize, "Normalizing media",
			fmt.Sprintf("Transcoding %.1f%%", update.Percent), update.Percent/100)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "normalizing", "transcode media",
			"ffmpeg failed to normalize the source", err)
	}

	if !stage.ArtifactExists(destination) {
		return services.Wrap(services.ErrExternalTool, "normalizing", "verify output",
			"Normalization produced no output file", nil)
	}

	job.NormalizedFile = destination
	stage.Report(job, stage.BandNormalize, "Normalizing media", "Media ready", 1)
	logger.Info("normalization complete", logging.String("normalized_file", destination))
	return nil
}

func (n *Normalizer) HealthCheck(ctx context.Context) stage.Health {
	if err := n.media.Available(ctx); err != nil {
		return stage.Unhealthy("normalize", err.Error())
	}
	return stage.Healthy("normalize")
}

var _ stage.Handler = (*Normalizer)(nil)
