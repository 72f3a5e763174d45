package transcribing

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"log/slog"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/services/whisper"
	"clipforge/internal/stage"
	"clipforge/internal/transcript"
)

// Transcriber produces the timestamped transcript the highlight stage scores.
type Transcriber struct {
	store       *queue.Store
	cfg         *config.Config
	logger      *slog.Logger
	transcriber whisper.Transcriber
}

// NewTranscriber constructs the transcription stage handler with default dependencies.
func NewTranscriber(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Transcriber {
	client := whisper.NewCLI(
		whisper.WithBinary(cfg.WhisperBinary()),
		whisper.WithModel(cfg.Transcription.Model),
		whisper.WithLanguage(cfg.Transcription.Language),
		whisper.WithTimeout(time.Duration(cfg.Transcription.Timeout)*time.Second),
	)
	return NewTranscriberWithDependencies(cfg, store, logger, client)
}

// NewTranscriberWithDependencies allows injecting collaborators (used in tests).
func NewTranscriberWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, client whisper.Transcriber) *Transcriber {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "transcribe"))
	}
	return &Transcriber{store: store, cfg: cfg, logger: stageLogger, transcriber: client}
}

func (t *Transcriber) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, t.logger)
	stage.Report(job, stage.BandTranscribe, "Transcribing audio", "Preparing transcription", 0)
	job.ErrorMessage = ""
	if !stage.ArtifactExists(job.NormalizedFile) {
		return services.Wrap(services.ErrValidation, "transcribing", "validate inputs",
			"Normalized media artifact is missing; re-run normalization", nil)
	}
	logger.Info("starting transcription preparation", logging.String("normalized_file", job.NormalizedFile))
	return nil
}

func (t *Transcriber) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, t.logger)

	destination := filepath.Join(t.cfg.TranscriptDir(), fmt.Sprintf("job-%d.json", job.ID))
	if stage.ArtifactExists(job.TranscriptFile) {
		if _, err := transcript.Load(job.TranscriptFile); err == nil {
			logger.Info("transcript already present, skipping",
				logging.String("transcript_file", job.TranscriptFile))
			stage.Report(job, stage.BandTranscribe, "Transcribing audio", "Transcript ready", 1)
			return nil
		}
		logger.Warn("existing transcript failed validation, regenerating",
			logging.String("transcript_file", job.TranscriptFile))
	}

	err := t.transcriber.Transcribe(ctx, job.NormalizedFile, destination, func(update whisper.ProgressUpdate) {
		message := update.Message
		if message == "" {
			message = fmt.Sprintf("Transcribing %.1f%%", update.Percent)
		}
		stage.Report(job, stage.BandTranscribe, "Transcribing audio", message, update.Percent/100)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "transcribing", "run speech-to-text",
			"Transcription failed", err)
	}

	document, err := transcript.Load(destination)
	if err != nil {
		return services.Wrap(services.ErrValidation, "transcribing", "validate transcript",
			"Transcriber produced an unusable transcript", err)
	}

	job.TranscriptFile = destination
	if job.MediaDuration <= 0 && document.Duration > 0 {
		job.MediaDuration = document.Duration
	}
	stage.Report(job, stage.BandTranscribe, "Transcribing audio", "Transcript ready", 1)
	logger.Info("transcription complete",
		logging.String("transcript_file", destination),
		logging.String("language", document.Language),
		logging.Int("segments", len(document.Segments)),
	)
	return nil
}

func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	if err := t.transcriber.Available(ctx); err != nil {
		return stage.Unhealthy("transcribe", err.Error())
	}
	return stage.Healthy("transcribe")
}

var _ stage.Handler = (*Transcriber)(nil)
