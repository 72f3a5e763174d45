package acquire

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/services/ffmpeg"
	"clipforge/internal/services/ytdlp"
	"clipforge/internal/stage"
)

// Acquirer fetches a job's source media into the raw artifact directory and
// records its duration. Remote sources download through yt-dlp with bounded
// retries; uploads are copied from the watch or submit path.
type Acquirer struct {
	store      *queue.Store
	cfg        *config.Config
	logger     *slog.Logger
	downloader ytdlp.Downloader
	media      ffmpeg.Service
}

// NewAcquirer constructs the acquisition stage handler with default dependencies.
func NewAcquirer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Acquirer {
	downloader := ytdlp.NewCLI(ytdlp.WithBinary(cfg.YtDlpBinary()))
	media := ffmpeg.NewCLI(ffmpeg.WithBinaries(cfg.FFmpegBinary(), cfg.FFprobeBinary()))
	return NewAcquirerWithDependencies(cfg, store, logger, downloader, media)
}

// NewAcquirerWithDependencies allows injecting collaborators (used in tests).
func NewAcquirerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, downloader ytdlp.Downloader, media ffmpeg.Service) *Acquirer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "acquire"))
	}
	return &Acquirer{store: store, cfg: cfg, logger: stageLogger, downloader: downloader, media: media}
}

func (a *Acquirer) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, a.logger)
	stage.Report(job, stage.BandAcquire, "Acquiring source", "Preparing acquisition", 0)
	job.ErrorMessage = ""
	if job.Source() == "" {
		return services.Wrap(services.ErrValidation, "acquiring", "validate inputs", "Job has no source URL or path", nil)
	}
	logger.Info("starting acquisition preparation",
		logging.String("source_type", string(job.SourceType)),
		logging.String("source", job.Source()),
	)
	return nil
}

func (a *Acquirer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, a.logger)

	if stage.ArtifactExists(job.RawFile) {
		logger.Info("raw artifact already present, skipping download", logging.String("raw_file", job.RawFile))
		return a.finish(ctx, job)
	}

	destination := filepath.Join(a.cfg.RawDir(), fmt.Sprintf("job-%d-raw.mp4", job.ID))

	var err error
	switch job.SourceType {
	case queue.SourceYouTube:
		err = a.download(ctx, job, destination)
	case queue.SourceUpload:
		err = a.importUpload(ctx, job, destination)
	default:
		return services.Wrap(services.ErrValidation, "acquiring", "validate inputs",
			fmt.Sprintf("Unknown source type %q", job.SourceType), nil)
	}
	if err != nil {
		return err
	}

	job.RawFile = destination
	return a.finish(ctx, job)
}

// download fetches a remote source with exponential backoff. Permanently
// unavailable sources fail on the first attempt.
func (a *Acquirer) download(ctx context.Context, job *queue.Job, destination string) error {
	logger := logging.WithContext(ctx, a.logger)

	attempts := a.cfg.Acquisition.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Duration(a.cfg.Acquisition.BackoffBase) * time.Second
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		stage.Report(job, stage.BandAcquire, "Acquiring source",
			fmt.Sprintf("Downloading (attempt %d/%d)", attempt, attempts), 0.05)
		if err := a.store.UpdateJob(ctx, job); err != nil {
			return err
		}

		err := a.downloader.Download(ctx, job.SourceURL, destination, func(update ytdlp.ProgressUpdate) {
			stage.Report(job, stage.BandAcquire, "Acquiring source",
				fmt.Sprintf("Downloading %.1f%%", update.Percent), update.Percent/100*0.9)
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !services.IsRetryable(err) {
			return services.Wrap(services.ErrUnavailable, "acquiring", "download source",
				"Source cannot be downloaded", err)
		}

		lastErr = err
		logger.Warn("download attempt failed",
			logging.Int("attempt", attempt),
			logging.Error(err),
		)
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return services.Wrap(services.ErrExternalTool, "acquiring", "download source",
		fmt.Sprintf("Download failed after %d attempts", attempts), lastErr)
}

// importUpload copies a local file into the raw directory so later stages
// never depend on the watch directory contents.
func (a *Acquirer) importUpload(ctx context.Context, job *queue.Job, destination string) error {
	source := job.SourcePath
	info, err := os.Stat(source)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "acquiring", "locate upload",
			fmt.Sprintf("Upload source %q is missing", source), err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return services.Wrap(services.ErrValidation, "acquiring", "locate upload",
			fmt.Sprintf("Upload source %q is not a usable file", source), nil)
	}

	stage.Report(job, stage.BandAcquire, "Acquiring source", "Importing upload", 0.1)
	if err := a.store.UpdateJob(ctx, job); err != nil {
		return err
	}

	if err := copyFile(ctx, source, destination); err != nil {
		return services.Wrap(services.ErrExternalTool, "acquiring", "import upload",
			"Failed to copy upload into the raw directory", err)
	}
	return nil
}

// finish probes the raw artifact and records the media duration the
// highlight stage needs for candidate enumeration.
func (a *Acquirer) finish(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, a.logger)

	info, err := a.media.Probe(ctx, job.RawFile)
	if err != nil {
		return services.Wrap(services.ErrValidation, "acquiring", "probe media",
			"Acquired file is not a playable video", err)
	}
	if info.DurationSec <= 0 {
		return services.Wrap(services.ErrValidation, "acquiring", "probe media",
			"Acquired file has no duration", nil)
	}

	job.MediaDuration = info.DurationSec
	stage.Report(job, stage.BandAcquire, "Acquiring source", "Source ready", 1)
	logger.Info("acquisition complete",
		logging.String("raw_file", job.RawFile),
		logging.Float64("duration_sec", info.DurationSec),
		logging.Int("width", info.Width),
		logging.Int("height", info.Height),
	)
	return nil
}

func (a *Acquirer) HealthCheck(ctx context.Context) stage.Health {
	if err := a.downloader.Available(ctx); err != nil {
		return stage.Unhealthy("acquire", err.Error())
	}
	if err := a.media.Available(ctx); err != nil {
		return stage.Unhealthy("acquire", err.Error())
	}
	return stage.Healthy("acquire")
}

func copyFile(ctx context.Context, source, destination string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return err
	}
	out, err := os.Create(destination)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(destination)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(destination)
		return err
	}
	return nil
}

var _ stage.Handler = (*Acquirer)(nil)
