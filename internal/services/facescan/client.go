package facescan

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"clipforge/internal/services"
	"clipforge/internal/vision"
)

var commandContext = exec.CommandContext

// Scanner samples a clip for face detections.
type Scanner interface {
	Scan(ctx context.Context, inputPath string, sampleInterval int) ([]vision.FrameSample, error)
	Available(ctx context.Context) error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the facescan binary path.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithMinConfidence drops detections below the given confidence.
func WithMinConfidence(confidence float64) Option {
	return func(c *CLI) {
		c.minConfidence = confidence
	}
}

// CLI shells out to facescan.
type CLI struct {
	binary        string
	minConfidence float64
}

// NewCLI constructs a client with default detection settings.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "facescan", minConfidence: 0.5}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Available verifies the facescan binary responds.
func (c *CLI) Available(ctx context.Context) error {
	cmd := commandContext(ctx, c.binary, "--version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("facescan unavailable: %w", err)
	}
	return nil
}

// Scan runs the detector over the clip and returns one sample per analyzed
// frame in source order. Lines that fail to parse are skipped so a partial
// detector glitch does not lose the whole scan.
func (c *CLI) Scan(ctx context.Context, inputPath string, sampleInterval int) ([]vision.FrameSample, error) {
	if strings.TrimSpace(inputPath) == "" {
		return nil, fmt.Errorf("%w: empty input path", services.ErrValidation)
	}
	if sampleInterval < 1 {
		sampleInterval = 1
	}

	args := []string{
		"--sample-interval", strconv.Itoa(sampleInterval),
		"--min-confidence", strconv.FormatFloat(c.minConfidence, 'f', 2, 64),
		"--output-format", "jsonl",
		inputPath,
	}

	cmd := commandContext(ctx, c.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	var errBuf strings.Builder
	cmd.Stderr = &errBuf
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start facescan: %w", err)
	}

	var samples []vision.FrameSample
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var sample vision.FrameSample
		if err := json.Unmarshal([]byte(line), &sample); err != nil {
			continue
		}
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read facescan output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		detail := strings.TrimSpace(errBuf.String())
		if detail == "" {
			return nil, fmt.Errorf("facescan: %w", err)
		}
		return nil, fmt.Errorf("facescan: %w: %s", err, detail)
	}
	return samples, nil
}

var _ Scanner = (*CLI)(nil)
