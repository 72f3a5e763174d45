package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	WatchDir string `toml:"watch_dir"`
}

// Clips contains highlight selection parameters.
type Clips struct {
	MinDuration   float64 `toml:"min_duration"`
	MaxDuration   float64 `toml:"max_duration"`
	IdealDuration float64 `toml:"ideal_duration"`
	MinGap        float64 `toml:"min_gap"`
	// Count is the target clip count; 0 selects automatically from media duration.
	Count int `toml:"count"`
	// Stride applied to candidate enumeration for media longer than one hour.
	LongMediaStride int `toml:"long_media_stride"`
}

// Tracking contains face tracking and active-speaker parameters.
type Tracking struct {
	SampleInterval    int     `toml:"sample_interval"`
	IOUThreshold      float64 `toml:"iou_threshold"`
	MaxMisses         int     `toml:"max_misses"`
	EMAAlpha          float64 `toml:"ema_alpha"`
	SwitchAlpha       float64 `toml:"switch_alpha"`
	SpeakerWindow     int     `toml:"speaker_window"`
	SpeakingThreshold float64 `toml:"speaking_threshold"`
	// TiePolicy decides the focus pick when speech signals are weak:
	// "variance" prefers mouth-movement variance, "area" prefers face size.
	TiePolicy string `toml:"tie_policy"`
	// MinDwellFrames gates duo-switch focus changes to prevent flicker.
	MinDwellFrames int `toml:"min_dwell_frames"`
}

// Output contains rendered clip dimensions.
type Output struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// Workflow contains daemon timing and concurrency configuration.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	Workers            int `toml:"workers"`
}

// Acquisition contains source download settings.
type Acquisition struct {
	Timeout     int `toml:"timeout"`
	MaxAttempts int `toml:"max_attempts"`
	// BackoffBase is the initial retry delay in seconds; doubled per attempt.
	BackoffBase int `toml:"backoff_base"`
}

// Transcription contains speech-to-text settings.
type Transcription struct {
	Model    string `toml:"model"`
	Language string `toml:"language"`
	Timeout  int    `toml:"timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for clipforge.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Clips         Clips         `toml:"clips"`
	Tracking      Tracking      `toml:"tracking"`
	Output        Output        `toml:"output"`
	Workflow      Workflow      `toml:"workflow"`
	Acquisition   Acquisition   `toml:"acquisition"`
	Transcription Transcription `toml:"transcription"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clipforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("clipforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// SampleConfig returns the embedded sample configuration file contents.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath resolves a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

// Artifact directories under DataDir. Each stage owns exactly one of these
// while producing its artifact.
func (c *Config) RawDir() string        { return filepath.Join(c.Paths.DataDir, "raw") }
func (c *Config) NormalizedDir() string { return filepath.Join(c.Paths.DataDir, "normalized") }
func (c *Config) TranscriptDir() string { return filepath.Join(c.Paths.DataDir, "transcripts") }
func (c *Config) ThumbnailDir() string  { return filepath.Join(c.Paths.DataDir, "thumbnails") }
func (c *Config) RenderDir() string     { return filepath.Join(c.Paths.DataDir, "renders") }

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.LogDir,
		c.RawDir(),
		c.NormalizedDir(),
		c.TranscriptDir(),
		c.ThumbnailDir(),
		c.RenderDir(),
	}
	if strings.TrimSpace(c.Paths.WatchDir) != "" {
		dirs = append(dirs, c.Paths.WatchDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// YtDlpBinary returns the yt-dlp executable name used for source acquisition.
func (c *Config) YtDlpBinary() string {
	return "yt-dlp"
}

// WhisperBinary returns the transcription executable name.
func (c *Config) WhisperBinary() string {
	return "whisper-ctl"
}

// FaceScanBinary returns the face detector executable name.
func (c *Config) FaceScanBinary() string {
	return "facescan"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
