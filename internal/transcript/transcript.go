// Package transcript defines the timestamped transcript model produced by
// speech recognition and consumed by highlight selection.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Segment is one contiguous span of recognized speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Words splits the segment text on whitespace.
func (s Segment) Words() []string {
	return strings.Fields(s.Text)
}

// Transcript is the full recognized content of one media file.
type Transcript struct {
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// Validate rejects transcripts whose segments are malformed or unordered.
func (t *Transcript) Validate() error {
	if len(t.Segments) == 0 {
		return fmt.Errorf("transcript has no segments")
	}
	prevStart := -1.0
	for i, seg := range t.Segments {
		if seg.End < seg.Start {
			return fmt.Errorf("segment %d: end %.2f before start %.2f", i, seg.End, seg.Start)
		}
		if seg.Start < prevStart {
			return fmt.Errorf("segment %d: out of order (start %.2f after %.2f)", i, seg.Start, prevStart)
		}
		prevStart = seg.Start
	}
	return nil
}

// Normalize trims segment text, drops empty segments, and sorts by start time.
func (t *Transcript) Normalize() {
	cleaned := t.Segments[:0]
	for _, seg := range t.Segments {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		cleaned = append(cleaned, seg)
	}
	t.Segments = cleaned
	sort.SliceStable(t.Segments, func(i, j int) bool {
		return t.Segments[i].Start < t.Segments[j].Start
	})
	if t.Duration == 0 && len(t.Segments) > 0 {
		t.Duration = t.Segments[len(t.Segments)-1].End
	}
}

// Load reads and validates a transcript JSON file.
func Load(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Save writes the transcript as JSON, creating parent directories as needed.
func Save(path string, t *Transcript) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
