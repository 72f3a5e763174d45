package queue

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a job or render.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAcquiring    Status = "acquiring"
	StatusAcquired     Status = "acquired"
	StatusNormalizing  Status = "normalizing"
	StatusNormalized   Status = "normalized"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusHighlighting Status = "highlighting"
	StatusHighlighted  Status = "highlighted"
	StatusClipping     Status = "clipping"
	StatusRendering    Status = "rendering"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// CancelStopReason is the error message recorded when work stops on request.
const CancelStopReason = "Cancelled by user"

// DaemonStopReason is the error message set when items are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusAcquiring,
	StatusAcquired,
	StatusNormalizing,
	StatusNormalized,
	StatusTranscribing,
	StatusTranscribed,
	StatusHighlighting,
	StatusHighlighted,
	StatusClipping,
	StatusRendering,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusAcquiring:    {},
	StatusNormalizing:  {},
	StatusTranscribing: {},
	StatusHighlighting: {},
	StatusClipping:     {},
	StatusRendering:    {},
}

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// SourceType distinguishes how a job's media arrives.
type SourceType string

const (
	SourceYouTube SourceType = "youtube"
	SourceUpload  SourceType = "upload"
)

// Job is a queued source video progressing toward a set of highlight clips.
type Job struct {
	ID              int64
	UUID            string
	SourceType      SourceType
	SourceURL       string
	SourcePath      string
	Title           string
	Status          Status
	RawFile         string
	NormalizedFile  string
	TranscriptFile  string
	MediaDuration   float64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	LastHeartbeat   *time.Time
	CancelRequested bool
}

// ClipMetadata carries the scoring features persisted alongside a clip.
type ClipMetadata struct {
	Categories   []string `json:"categories"`
	WordCount    int      `json:"word_count"`
	HasQuestion  bool     `json:"has_question"`
	SegmentCount int      `json:"segment_count"`
}

// Clip is an accepted highlight selection. Immutable after creation except deletion.
type Clip struct {
	ID            string
	JobID         int64
	StartSec      float64
	EndSec        float64
	Score         float64
	Title         string
	Snippet       string
	ThumbnailPath string
	MetadataJSON  string
	CreatedAt     time.Time
}

// Metadata decodes the clip's persisted scoring features.
func (c *Clip) Metadata() (ClipMetadata, error) {
	var meta ClipMetadata
	if strings.TrimSpace(c.MetadataJSON) == "" {
		return meta, nil
	}
	err := json.Unmarshal([]byte(c.MetadataJSON), &meta)
	return meta, err
}

// CropMode selects the smart-crop behavior for a render.
type CropMode string

const (
	CropModeAuto      CropMode = "auto"
	CropModeSolo      CropMode = "solo"
	CropModeDuoSwitch CropMode = "duo_switch"
	CropModeDuoSplit  CropMode = "duo_split"
)

// RenderOptions are the per-render export settings.
type RenderOptions struct {
	FaceTracking bool     `json:"face_tracking"`
	SmartCrop    CropMode `json:"smart_crop"`
	Captions     bool     `json:"captions"`
	Watermark    string   `json:"watermark"`
}

// Render is one export of a clip into a vertical video artifact.
type Render struct {
	ID              string
	ClipID          string
	Status          Status
	OptionsJSON     string
	OutputPath      string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	LastHeartbeat   *time.Time
	CancelRequested bool
}

// Options decodes the render's persisted export settings.
func (r *Render) Options() (RenderOptions, error) {
	opts := RenderOptions{SmartCrop: CropModeAuto}
	if strings.TrimSpace(r.OptionsJSON) == "" {
		return opts, nil
	}
	err := json.Unmarshal([]byte(r.OptionsJSON), &opts)
	if opts.SmartCrop == "" {
		opts.SmartCrop = CropModeAuto
	}
	return opts, err
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminalStatus reports whether a status is terminal.
func IsTerminalStatus(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// IsProcessing returns true when the job is in an in-flight stage.
func (j Job) IsProcessing() bool {
	return IsProcessingStatus(j.Status)
}

// Source returns the job's origin: the URL for remote jobs, otherwise the
// local path.
func (j Job) Source() string {
	if j.SourceURL != "" {
		return j.SourceURL
	}
	return j.SourcePath
}

// IsTerminal returns true when the job can no longer progress.
func (j Job) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

// SetProgress updates the progress triple. Percent regressions are dropped so
// job progress stays monotonic while processing.
func (j *Job) SetProgress(stage, message string, percent float64) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	if percent > 100 {
		percent = 100
	}
	if percent >= j.ProgressPercent {
		j.ProgressPercent = percent
	}
}

// SetFailed marks the job as failed with the given error message.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ProgressMessage = message
	j.LastHeartbeat = nil
	j.ProgressStage = "Failed"
}

// SetCancelled marks the job as cancelled.
func (j *Job) SetCancelled() {
	j.Status = StatusCancelled
	j.ErrorMessage = CancelStopReason
	j.ProgressMessage = CancelStopReason
	j.LastHeartbeat = nil
	j.ProgressStage = "Cancelled"
}

// IsProcessing returns true when the render is in flight.
func (r Render) IsProcessing() bool {
	return r.Status == StatusRendering
}

// IsTerminal returns true when the render can no longer progress.
func (r Render) IsTerminal() bool {
	return IsTerminalStatus(r.Status)
}

// SetProgress updates the render progress triple, holding percent monotonic.
func (r *Render) SetProgress(stage, message string, percent float64) {
	r.ProgressStage = stage
	r.ProgressMessage = message
	if percent > 100 {
		percent = 100
	}
	if percent >= r.ProgressPercent {
		r.ProgressPercent = percent
	}
}

// SetFailed marks the render as failed with the given error message.
func (r *Render) SetFailed(message string) {
	r.Status = StatusFailed
	r.ErrorMessage = message
	r.ProgressMessage = message
	r.LastHeartbeat = nil
	r.ProgressStage = "Failed"
}

// SetCancelled marks the render as cancelled.
func (r *Render) SetCancelled() {
	r.Status = StatusCancelled
	r.ErrorMessage = CancelStopReason
	r.ProgressMessage = CancelStopReason
	r.LastHeartbeat = nil
	r.ProgressStage = "Cancelled"
}

// HealthSummary describes aggregated queue counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Cancelled  int
	Completed  int
}

// StageKey returns the normalized stage identifier used in CLI presentation.
func (s Status) StageKey() string {
	switch s {
	case "":
		return ""
	case StatusPending:
		return "planned"
	case StatusCompleted:
		return "final"
	default:
		return string(s)
	}
}
