package config

const (
	defaultDataDir            = "~/.local/share/clipforge/data"
	defaultLogDir             = "~/.local/share/clipforge/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultMinClipDuration    = 15.0
	defaultMaxClipDuration    = 60.0
	defaultIdealClipDuration  = 35.0
	defaultMinClipGap         = 10.0
	defaultLongMediaStride    = 3
	defaultSampleInterval     = 2
	defaultIOUThreshold       = 0.3
	defaultMaxMisses          = 5
	defaultEMAAlpha           = 0.2
	defaultSwitchAlpha        = 0.4
	defaultSpeakerWindow      = 10
	defaultSpeakingThreshold  = 5.0
	defaultTiePolicy          = "variance"
	defaultMinDwellFrames     = 12
	defaultOutputWidth        = 1080
	defaultOutputHeight       = 1920
	defaultWorkers            = 2
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultAcquireTimeout     = 600
	defaultAcquireAttempts    = 3
	defaultAcquireBackoff     = 2
	defaultWhisperModel       = "base"
	defaultTranscribeTimeout  = 3600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Clips: Clips{
			MinDuration:     defaultMinClipDuration,
			MaxDuration:     defaultMaxClipDuration,
			IdealDuration:   defaultIdealClipDuration,
			MinGap:          defaultMinClipGap,
			LongMediaStride: defaultLongMediaStride,
		},
		Tracking: Tracking{
			SampleInterval:    defaultSampleInterval,
			IOUThreshold:      defaultIOUThreshold,
			MaxMisses:         defaultMaxMisses,
			EMAAlpha:          defaultEMAAlpha,
			SwitchAlpha:       defaultSwitchAlpha,
			SpeakerWindow:     defaultSpeakerWindow,
			SpeakingThreshold: defaultSpeakingThreshold,
			TiePolicy:         defaultTiePolicy,
			MinDwellFrames:    defaultMinDwellFrames,
		},
		Output: Output{
			Width:  defaultOutputWidth,
			Height: defaultOutputHeight,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			Workers:            defaultWorkers,
		},
		Acquisition: Acquisition{
			Timeout:     defaultAcquireTimeout,
			MaxAttempts: defaultAcquireAttempts,
			BackoffBase: defaultAcquireBackoff,
		},
		Transcription: Transcription{
			Model:   defaultWhisperModel,
			Timeout: defaultTranscribeTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
