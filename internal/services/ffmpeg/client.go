package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// ProgressUpdate captures ffmpeg encode progress.
type ProgressUpdate struct {
	Percent float64
	Speed   string
	Message string
}

// MediaInfo is the probe result the pipeline cares about.
type MediaInfo struct {
	DurationSec float64
	Width       int
	Height      int
	VideoCodec  string
	AudioCodec  string
	FrameRate   float64
	HasAudio    bool
}

// Service defines the ffmpeg behaviour stage handlers depend on.
type Service interface {
	Probe(ctx context.Context, inputPath string) (MediaInfo, error)
	Normalize(ctx context.Context, inputPath, outputPath string, progress func(ProgressUpdate)) error
	ExtractSegment(ctx context.Context, inputPath, outputPath string, startSec, durationSec float64) error
	RenderTimeline(ctx context.Context, req RenderRequest, progress func(ProgressUpdate)) error
	Thumbnail(ctx context.Context, inputPath, outputPath string, atSec float64) error
	Available(ctx context.Context) error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinaries overrides the ffmpeg and ffprobe binary names.
func WithBinaries(ffmpegBin, ffprobeBin string) Option {
	return func(c *CLI) {
		if ffmpegBin != "" {
			c.ffmpeg = ffmpegBin
		}
		if ffprobeBin != "" {
			c.ffprobe = ffprobeBin
		}
	}
}

// CLI shells out to ffmpeg/ffprobe.
type CLI struct {
	ffmpeg  string
	ffprobe string
}

// NewCLI constructs a client with default binary names.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Available verifies the ffmpeg binary responds.
func (c *CLI) Available(ctx context.Context) error {
	cmd := commandContext(ctx, c.ffmpeg, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg unavailable: %w", err)
	}
	return nil
}

// run executes ffmpeg with -progress reporting and feeds parsed updates to
// the callback. totalSec scales out_time into a percentage.
func (c *CLI) run(ctx context.Context, args []string, totalSec float64, progress func(ProgressUpdate)) error {
	prefix := []string{"-hide_banner", "-nostdin", "-y"}
	if progress != nil {
		prefix = append(prefix, "-progress", "pipe:1", "-loglevel", "error")
	}
	full := append(prefix, args...)

	cmd := commandContext(ctx, c.ffmpeg, full...)
	if progress == nil {
		output, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("ffmpeg: %w: %s", err, tail(string(output)))
		}
		return nil
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var errBuf strings.Builder
	cmd.Stderr = &errBuf
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	update := ProgressUpdate{}
	for scanner.Scan() {
		key, value, found := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !found {
			continue
		}
		switch key {
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && totalSec > 0 {
				update.Percent = clampPercent(float64(us) / 1e6 / totalSec * 100)
			}
		case "speed":
			update.Speed = strings.TrimSpace(value)
		case "progress":
			if value == "end" {
				update.Percent = 100
			}
			progress(update)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ffmpeg output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(errBuf.String()))
	}
	return nil
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// tail keeps error output readable in logs and persisted messages.
func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

var _ Service = (*CLI)(nil)
