package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeClips()
	c.normalizeTracking()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WatchDir) != "" {
		if c.Paths.WatchDir, err = expandPath(c.Paths.WatchDir); err != nil {
			return fmt.Errorf("paths.watch_dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeClips() {
	if c.Clips.LongMediaStride <= 0 {
		c.Clips.LongMediaStride = defaultLongMediaStride
	}
	if c.Clips.Count < 0 {
		c.Clips.Count = 0
	}
}

func (c *Config) normalizeTracking() {
	c.Tracking.TiePolicy = strings.ToLower(strings.TrimSpace(c.Tracking.TiePolicy))
	if c.Tracking.TiePolicy == "" {
		c.Tracking.TiePolicy = defaultTiePolicy
	}
	if c.Tracking.SampleInterval <= 0 {
		c.Tracking.SampleInterval = defaultSampleInterval
	}
	if c.Tracking.MaxMisses <= 0 {
		c.Tracking.MaxMisses = defaultMaxMisses
	}
	if c.Tracking.SpeakerWindow <= 0 {
		c.Tracking.SpeakerWindow = defaultSpeakerWindow
	}
	if c.Tracking.MinDwellFrames <= 0 {
		c.Tracking.MinDwellFrames = defaultMinDwellFrames
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
