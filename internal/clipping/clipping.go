package clipping

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"log/slog"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/services/ffmpeg"
	"clipforge/internal/stage"
)

// Finisher completes a job: it captures a midpoint thumbnail for every
// selected clip and drops the raw download, which nothing after this stage
// reads. Renders cut from the normalized artifact.
type Finisher struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	media  ffmpeg.Service
}

// NewFinisher constructs the clipping stage handler with default dependencies.
func NewFinisher(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Finisher {
	media := ffmpeg.NewCLI(ffmpeg.WithBinaries(cfg.FFmpegBinary(), cfg.FFprobeBinary()))
	return NewFinisherWithDependencies(cfg, store, logger, media)
}

// NewFinisherWithDependencies allows injecting collaborators (used in tests).
func NewFinisherWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, media ffmpeg.Service) *Finisher {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "clipping"))
	}
	return &Finisher{store: store, cfg: cfg, logger: stageLogger, media: media}
}

func (f *Finisher) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, f.logger)
	stage.Report(job, stage.BandClip, "Cutting clips", "Preparing clip assets", 0)
	job.ErrorMessage = ""
	if !stage.ArtifactExists(job.NormalizedFile) {
		return services.Wrap(services.ErrValidation, "clipping", "validate inputs",
			"Normalized media artifact is missing; re-run normalization", nil)
	}
	logger.Info("starting clip preparation", logging.String("normalized_file", job.NormalizedFile))
	return nil
}

func (f *Finisher) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, f.logger)

	clips, err := f.store.ClipsByJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if len(clips) == 0 {
		return services.Wrap(services.ErrValidation, "clipping", "load clips",
			"Job has no selected clips; re-run highlight selection", nil)
	}

	for i, clip := range clips {
		if err := ctx.Err(); err != nil {
			return err
		}
		stage.Report(job, stage.BandClip, "Cutting clips",
			fmt.Sprintf("Thumbnail %d/%d", i+1, len(clips)), float64(i)/float64(len(clips))*0.9)
		if err := f.store.UpdateJob(ctx, job); err != nil {
			return err
		}

		if stage.ArtifactExists(clip.ThumbnailPath) {
			continue
		}
		thumbnail := filepath.Join(f.cfg.ThumbnailDir(), fmt.Sprintf("clip-%s.jpg", clip.ID))
		midpoint := clip.StartSec + (clip.EndSec-clip.StartSec)/2
		if err := f.media.Thumbnail(ctx, job.NormalizedFile, thumbnail, midpoint); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return services.Wrap(services.ErrExternalTool, "clipping", "capture thumbnail",
				fmt.Sprintf("Thumbnail capture failed for clip %s", clip.ID), err)
		}
		clip.ThumbnailPath = thumbnail
		if err := f.store.UpdateClip(ctx, clip); err != nil {
			return err
		}
	}

	// The raw download is only needed until normalization is verified.
	if stage.ArtifactExists(job.RawFile) {
		if err := os.Remove(job.RawFile); err != nil {
			logger.Warn("raw artifact cleanup failed",
				logging.String("raw_file", job.RawFile),
				logging.Error(err),
			)
		} else {
			logger.Info("raw artifact removed", logging.String("raw_file", job.RawFile))
			job.RawFile = ""
		}
	}

	stage.Report(job, stage.BandClip, "Cutting clips", "Clips ready", 1)
	logger.Info("clip stage complete", logging.Int("clips", len(clips)))
	return nil
}

func (f *Finisher) HealthCheck(ctx context.Context) stage.Health {
	if err := f.media.Available(ctx); err != nil {
		return stage.Unhealthy("clipping", err.Error())
	}
	return stage.Healthy("clipping")
}

var _ stage.Handler = (*Finisher)(nil)
