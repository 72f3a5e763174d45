package whisper

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"clipforge/internal/services"
)

var commandContext = exec.CommandContext

// ProgressUpdate reports transcription progress.
type ProgressUpdate struct {
	Percent float64
	Message string
}

// Transcriber turns a media file into a transcript document.
type Transcriber interface {
	Transcribe(ctx context.Context, inputPath, outputPath string, progress func(ProgressUpdate)) error
	Available(ctx context.Context) error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the whisper-ctl binary path.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithModel selects the recognition model.
func WithModel(model string) Option {
	return func(c *CLI) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLanguage pins the spoken language instead of auto-detecting.
func WithLanguage(language string) Option {
	return func(c *CLI) {
		c.language = language
	}
}

// WithTimeout bounds a single transcription run.
func WithTimeout(timeout time.Duration) Option {
	return func(c *CLI) {
		c.timeout = timeout
	}
}

// CLI shells out to whisper-ctl.
type CLI struct {
	binary   string
	model    string
	language string
	timeout  time.Duration
}

// NewCLI constructs a client with the base model and language auto-detection.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "whisper-ctl", model: "base"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Available verifies the whisper-ctl binary responds.
func (c *CLI) Available(ctx context.Context) error {
	cmd := commandContext(ctx, c.binary, "--version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("whisper-ctl unavailable: %w", err)
	}
	return nil
}

type progressEvent struct {
	Type    string  `json:"type"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// Transcribe runs speech-to-text over the input and writes the transcript
// JSON to outputPath. Runs that exceed the configured timeout are reported
// as timeouts so the stage can retry.
func (c *CLI) Transcribe(ctx context.Context, inputPath, outputPath string, progress func(ProgressUpdate)) error {
	if strings.TrimSpace(inputPath) == "" {
		return fmt.Errorf("%w: empty input path", services.ErrValidation)
	}
	if strings.TrimSpace(outputPath) == "" {
		return fmt.Errorf("%w: empty output path", services.ErrValidation)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{
		"--model", c.model,
		"--output-format", "json",
		"--output", outputPath,
		"--progress-json",
	}
	if c.language != "" && c.language != "auto" {
		args = append(args, "--language", c.language)
	}
	args = append(args, inputPath)

	cmd := commandContext(runCtx, c.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var errBuf strings.Builder
	cmd.Stderr = &errBuf
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start whisper-ctl: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || progress == nil {
			continue
		}
		var event progressEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if event.Type != "progress" {
			continue
		}
		progress(ProgressUpdate{Percent: event.Percent, Message: event.Message})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read whisper-ctl output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: transcription exceeded %s", services.ErrTimeout, c.timeout)
		}
		detail := strings.TrimSpace(errBuf.String())
		if detail == "" {
			return fmt.Errorf("whisper-ctl: %w", err)
		}
		return fmt.Errorf("whisper-ctl: %w: %s", err, detail)
	}
	return nil
}

var _ Transcriber = (*CLI)(nil)
