package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateClips(); err != nil {
		return err
	}
	if err := c.validateTracking(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateAcquisition()
}

func (c *Config) validateClips() error {
	if c.Clips.MinDuration <= 0 {
		return errors.New("clips.min_duration must be positive")
	}
	if c.Clips.MaxDuration <= c.Clips.MinDuration {
		return errors.New("clips.max_duration must be greater than clips.min_duration")
	}
	if c.Clips.IdealDuration < c.Clips.MinDuration || c.Clips.IdealDuration > c.Clips.MaxDuration {
		return errors.New("clips.ideal_duration must fall within [min_duration, max_duration]")
	}
	if c.Clips.MinGap < 0 {
		return errors.New("clips.min_gap must not be negative")
	}
	if c.Clips.Count > 50 {
		return errors.New("clips.count must not exceed 50")
	}
	return nil
}

func (c *Config) validateTracking() error {
	if c.Tracking.IOUThreshold <= 0 || c.Tracking.IOUThreshold >= 1 {
		return errors.New("tracking.iou_threshold must be between 0 and 1")
	}
	if c.Tracking.EMAAlpha <= 0 || c.Tracking.EMAAlpha > 1 {
		return errors.New("tracking.ema_alpha must be in (0, 1]")
	}
	if c.Tracking.SwitchAlpha <= 0 || c.Tracking.SwitchAlpha > 1 {
		return errors.New("tracking.switch_alpha must be in (0, 1]")
	}
	if c.Tracking.SpeakingThreshold < 0 {
		return errors.New("tracking.speaking_threshold must not be negative")
	}
	switch c.Tracking.TiePolicy {
	case "variance", "area":
	default:
		return fmt.Errorf("tracking.tie_policy must be %q or %q", "variance", "area")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if c.Output.Width <= 0 || c.Output.Height <= 0 {
		return errors.New("output.width and output.height must be positive")
	}
	if c.Output.Width >= c.Output.Height {
		return errors.New("output must be a vertical aspect (width < height)")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.workers":              c.Workflow.Workers,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateAcquisition() error {
	return ensurePositiveMap(map[string]int{
		"acquisition.timeout":      c.Acquisition.Timeout,
		"acquisition.max_attempts": c.Acquisition.MaxAttempts,
		"acquisition.backoff_base": c.Acquisition.BackoffBase,
		"transcription.timeout":    c.Transcription.Timeout,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
