package ytdlp

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"clipforge/internal/services"
)

var commandContext = exec.CommandContext

// defaultFormats is the selector ladder tried in order. The first entry keeps
// the normalize stage cheap; the later ones trade that for reach.
var defaultFormats = []string{
	"bestvideo[ext=mp4][height<=1080]+bestaudio[ext=m4a]/best[ext=mp4]",
	"best[ext=mp4]",
	"best",
}

// permanentMarkers identify yt-dlp failures that no retry will fix.
var permanentMarkers = []string{
	"video unavailable",
	"private video",
	"this video has been removed",
	"this video is not available",
	"account associated with this video has been terminated",
	"sign in to confirm",
	"http error 404",
}

var progressPattern = regexp.MustCompile(`\[download\]\s+([0-9.]+)%(?:.*?at\s+(\S+))?`)

// ProgressUpdate reports download progress for one strategy attempt.
type ProgressUpdate struct {
	Percent  float64
	Speed    string
	Strategy string
}

// Downloader fetches a remote source to a local file.
type Downloader interface {
	Download(ctx context.Context, source, outputPath string, progress func(ProgressUpdate)) error
	Available(ctx context.Context) error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the yt-dlp binary path.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithFormats replaces the format selector ladder.
func WithFormats(formats []string) Option {
	return func(c *CLI) {
		if len(formats) > 0 {
			c.formats = formats
		}
	}
}

// CLI shells out to yt-dlp.
type CLI struct {
	binary  string
	formats []string
}

// NewCLI constructs a client with the default selector ladder.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "yt-dlp", formats: defaultFormats}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Available verifies the yt-dlp binary responds.
func (c *CLI) Available(ctx context.Context) error {
	cmd := commandContext(ctx, c.binary, "--version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp unavailable: %w", err)
	}
	return nil
}

// Download fetches the source, trying each format selector in order. A
// permanently unavailable source aborts the ladder immediately.
func (c *CLI) Download(ctx context.Context, source, outputPath string, progress func(ProgressUpdate)) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("%w: empty source url", services.ErrValidation)
	}
	if strings.TrimSpace(outputPath) == "" {
		return fmt.Errorf("%w: empty output path", services.ErrValidation)
	}

	var lastErr error
	for _, format := range c.formats {
		err := c.attempt(ctx, source, outputPath, format, progress)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isPermanent(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("all download strategies failed: %w", lastErr)
}

func (c *CLI) attempt(ctx context.Context, source, outputPath, format string, progress func(ProgressUpdate)) error {
	args := []string{
		"--no-playlist",
		"--newline",
		"--no-warnings",
		"-f", format,
		"-o", outputPath,
		source,
	}

	cmd := commandContext(ctx, c.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var errBuf strings.Builder
	cmd.Stderr = &errBuf
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start yt-dlp: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if progress == nil {
			continue
		}
		match := progressPattern.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}
		percent, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		progress(ProgressUpdate{Percent: percent, Speed: match[2], Strategy: format})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read yt-dlp output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		return classify(format, err, errBuf.String())
	}
	return nil
}

// classify tags the failure so retry logic can tell dead sources from
// transient network trouble.
func classify(format string, err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	lowered := strings.ToLower(detail)
	for _, marker := range permanentMarkers {
		if strings.Contains(lowered, marker) {
			return fmt.Errorf("%w: %s", services.ErrUnavailable, detail)
		}
	}
	if detail == "" {
		return fmt.Errorf("%w: yt-dlp (-f %s): %w", services.ErrTransient, format, err)
	}
	return fmt.Errorf("%w: yt-dlp (-f %s): %s", services.ErrTransient, format, detail)
}

func isPermanent(err error) bool {
	return err != nil && !services.IsRetryable(err)
}

var _ Downloader = (*CLI)(nil)
