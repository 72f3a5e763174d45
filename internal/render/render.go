package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"log/slog"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/reframe"
	"clipforge/internal/services"
	"clipforge/internal/services/facescan"
	"clipforge/internal/services/ffmpeg"
	"clipforge/internal/stage"
	"clipforge/internal/transcript"
	"clipforge/internal/vision"
)

// Renderer exports one clip as a vertical video. The clip window is cut from
// the normalized media, the cast is scanned for faces, a crop timeline is
// planned, and ffmpeg renders the result with optional captions and
// watermark. Clips where no face survives tracking fall back to a fixed
// center crop.
type Renderer struct {
	store   *queue.Store
	cfg     *config.Config
	logger  *slog.Logger
	media   ffmpeg.Service
	scanner facescan.Scanner
}

// NewRenderer constructs the render handler with default dependencies.
func NewRenderer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Renderer {
	media := ffmpeg.NewCLI(ffmpeg.WithBinaries(cfg.FFmpegBinary(), cfg.FFprobeBinary()))
	scanner := facescan.NewCLI(facescan.WithBinary(cfg.FaceScanBinary()))
	return NewRendererWithDependencies(cfg, store, logger, media, scanner)
}

// NewRendererWithDependencies allows injecting collaborators (used in tests).
func NewRendererWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, media ffmpeg.Service, scanner facescan.Scanner) *Renderer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "render"))
	}
	return &Renderer{store: store, cfg: cfg, logger: stageLogger, media: media, scanner: scanner}
}

func (r *Renderer) Prepare(ctx context.Context, render *queue.Render) error {
	logger := logging.WithContext(ctx, r.logger)
	render.SetProgress("Rendering clip", "Preparing render", 0)
	render.ErrorMessage = ""

	clip, err := r.store.GetClip(ctx, render.ClipID)
	if err != nil {
		return err
	}
	if clip == nil {
		return services.Wrap(services.ErrNotFound, "rendering", "load clip",
			fmt.Sprintf("Clip %s no longer exists", render.ClipID), nil)
	}
	job, err := r.store.GetJob(ctx, clip.JobID)
	if err != nil {
		return err
	}
	if job == nil || !stage.ArtifactExists(job.NormalizedFile) {
		return services.Wrap(services.ErrValidation, "rendering", "validate inputs",
			"Normalized media for this clip is missing; re-run the job", nil)
	}
	logger.Info("starting render preparation",
		logging.String("clip_id", clip.ID),
		logging.Int64("job_id", clip.JobID),
	)
	return nil
}

func (r *Renderer) Execute(ctx context.Context, render *queue.Render) error {
	logger := logging.WithContext(ctx, r.logger)

	opts, err := render.Options()
	if err != nil {
		return services.Wrap(services.ErrValidation, "rendering", "decode options",
			"Render options are unreadable", err)
	}
	clip, err := r.store.GetClip(ctx, render.ClipID)
	if err != nil {
		return err
	}
	if clip == nil {
		return services.Wrap(services.ErrNotFound, "rendering", "load clip",
			fmt.Sprintf("Clip %s no longer exists", render.ClipID), nil)
	}
	job, err := r.store.GetJob(ctx, clip.JobID)
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "rendering", "load job",
			fmt.Sprintf("Job #%d no longer exists", clip.JobID), nil)
	}

	duration := clip.EndSec - clip.StartSec
	segment := filepath.Join(r.cfg.RenderDir(), fmt.Sprintf("render-%s-segment.mp4", render.ID))
	defer os.Remove(segment)

	render.SetProgress("Rendering clip", "Cutting segment", 5)
	if err := r.store.UpdateRender(ctx, render); err != nil {
		return err
	}
	if err := r.media.ExtractSegment(ctx, job.NormalizedFile, segment, clip.StartSec, duration); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "rendering", "cut segment",
			"Segment extraction failed", err)
	}

	info, err := r.media.Probe(ctx, segment)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "rendering", "probe segment",
			"Cut segment is unreadable", err)
	}

	timeline, err := r.planTimeline(ctx, render, segment, info, opts)
	if err != nil {
		return err
	}

	captions := ""
	if opts.Captions {
		captions = filepath.Join(r.cfg.RenderDir(), fmt.Sprintf("render-%s.srt", render.ID))
		if err := r.writeCaptions(job, clip, captions); err != nil {
			logger.Warn("caption generation failed, rendering without captions", logging.Error(err))
			captions = ""
		} else {
			defer os.Remove(captions)
		}
	}

	output := filepath.Join(r.cfg.RenderDir(), fmt.Sprintf("render-%s.mp4", render.ID))
	request := ffmpeg.RenderRequest{
		InputPath:     segment,
		OutputPath:    output,
		Timeline:      timeline,
		OutputWidth:   r.cfg.Output.Width,
		OutputHeight:  r.cfg.Output.Height,
		DurationSec:   duration,
		SubtitlePath:  captions,
		WatermarkText: opts.Watermark,
	}
	err = r.media.RenderTimeline(ctx, request, func(update ffmpeg.ProgressUpdate) {
		render.SetProgress("Rendering clip",
			fmt.Sprintf("Encoding %.1f%%", update.Percent), 30+update.Percent*0.7)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "rendering", "encode output",
			"Vertical render failed", err)
	}
	if !stage.ArtifactExists(output) {
		return services.Wrap(services.ErrExternalTool, "rendering", "verify output",
			"Render produced no output file", nil)
	}

	render.OutputPath = output
	logger.Info("render complete",
		logging.String("output", output),
		logging.String("mode", string(timeline.Mode)),
		logging.Int("frames", len(timeline.Frames)),
	)
	return nil
}

// planTimeline scans the segment for faces and plans the crop path. Disabled
// tracking, an empty scan, or a cast with no detections all degrade to the
// fixed center crop.
func (r *Renderer) planTimeline(ctx context.Context, render *queue.Render, segment string, info ffmpeg.MediaInfo, opts queue.RenderOptions) (reframe.Timeline, error) {
	logger := logging.WithContext(ctx, r.logger)

	tracking := r.cfg.Tracking
	planOpts := reframe.PlanOptions{
		SourceWidth:  info.Width,
		SourceHeight: info.Height,
		OutputWidth:  r.cfg.Output.Width,
		OutputHeight: r.cfg.Output.Height,
		Alpha:        tracking.EMAAlpha,
		SwitchAlpha:  tracking.SwitchAlpha,
		Tracking: reframe.TrackingParams{
			IOUThreshold:      tracking.IOUThreshold,
			MaxMisses:         tracking.MaxMisses,
			SpeakerWindow:     tracking.SpeakerWindow,
			SpeakingThreshold: tracking.SpeakingThreshold,
			TiePolicy:         vision.TiePolicy(tracking.TiePolicy),
			MinDwellFrames:    tracking.MinDwellFrames,
		},
	}

	if !opts.FaceTracking {
		return reframe.CenterTimeline(planOpts), nil
	}

	render.SetProgress("Rendering clip", "Scanning faces", 10)
	if err := r.store.UpdateRender(ctx, render); err != nil {
		return reframe.Timeline{}, err
	}

	samples, err := r.scanner.Scan(ctx, segment, tracking.SampleInterval)
	if err != nil {
		if ctx.Err() != nil {
			return reframe.Timeline{}, ctx.Err()
		}
		return reframe.Timeline{}, services.Wrap(services.ErrExternalTool, "rendering", "scan faces",
			"Face scan failed", err)
	}
	if !hasDetections(samples) {
		logger.Info("no faces detected, using center crop")
		return reframe.CenterTimeline(planOpts), nil
	}

	mode, forced := forcedMode(opts.SmartCrop)
	if !forced {
		stats := reframe.Prescan(samples, planOpts.Tracking)
		mode = reframe.ChooseMode(stats)
		logger.Info("crop mode selected",
			logging.String("mode", string(mode)),
			logging.Int("stable_tracks", stats.StableTracks),
			logging.Int("crosstalk_runs", stats.CrosstalkRuns),
		)
	}

	render.SetProgress("Rendering clip", "Planning crop path", 20)
	if err := r.store.UpdateRender(ctx, render); err != nil {
		return reframe.Timeline{}, err
	}
	return reframe.Plan(ctx, samples, mode, planOpts)
}

// writeCaptions rebases the job transcript onto the clip window as SRT.
func (r *Renderer) writeCaptions(job *queue.Job, clip *queue.Clip, path string) error {
	if !stage.ArtifactExists(job.TranscriptFile) {
		return fmt.Errorf("transcript artifact %q is missing", job.TranscriptFile)
	}
	document, err := transcript.Load(job.TranscriptFile)
	if err != nil {
		return err
	}
	return transcript.WriteSRT(path, document, clip.StartSec, clip.EndSec)
}

func (r *Renderer) HealthCheck(ctx context.Context) stage.Health {
	if err := r.media.Available(ctx); err != nil {
		return stage.Unhealthy("render", err.Error())
	}
	if err := r.scanner.Available(ctx); err != nil {
		return stage.Unhealthy("render", err.Error())
	}
	return stage.Healthy("render")
}

func forcedMode(mode queue.CropMode) (reframe.Mode, bool) {
	switch mode {
	case queue.CropModeSolo:
		return reframe.ModeSolo, true
	case queue.CropModeDuoSwitch:
		return reframe.ModeDuoSwitch, true
	case queue.CropModeDuoSplit:
		return reframe.ModeDuoSplit, true
	default:
		return "", false
	}
}

func hasDetections(samples []vision.FrameSample) bool {
	for _, sample := range samples {
		if len(sample.Detections) > 0 {
			return true
		}
	}
	return false
}

var _ stage.RenderHandler = (*Renderer)(nil)
