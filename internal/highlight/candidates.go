package highlight

import (
	"context"
	"strings"

	"clipforge/internal/config"
	"clipforge/internal/transcript"
)

const (
	// Cap on the number of segments one candidate window may span.
	windowSpanCap = 150

	// Media longer than this switches to strided enumeration.
	longMediaThreshold = 3600.0

	// Window evaluations between cancellation polls.
	cancelPollInterval = 64
)

// Options controls candidate enumeration and selection.
type Options struct {
	MinDuration     float64
	MaxDuration     float64
	IdealDuration   float64
	MinGap          float64
	BaseCount       int
	LongMediaStride int

	// Count forces an exact clip target. Zero selects automatically from the
	// media duration.
	Count int
}

// OptionsFromConfig maps the clips config section onto selection options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MinDuration:     cfg.Clips.MinDuration,
		MaxDuration:     cfg.Clips.MaxDuration,
		IdealDuration:   cfg.Clips.IdealDuration,
		MinGap:          cfg.Clips.MinGap,
		BaseCount:       cfg.Clips.Count,
		LongMediaStride: cfg.Clips.LongMediaStride,
	}
}

// Candidate is one scored clip window.
type Candidate struct {
	Start        float64
	End          float64
	Duration     float64
	Score        float64
	Text         string
	SegmentCount int
	Metadata     Metadata
}

// generateCandidates enumerates clip windows over segment boundaries. Media
// over an hour advances the window start by the configured stride instead of
// one segment at a time, trading candidate density for linear-ish runtime.
func (o Options) generateCandidates(ctx context.Context, t *transcript.Transcript) ([]Candidate, error) {
	segments := t.Segments
	total := len(segments)

	stride := 1
	if t.Duration > longMediaThreshold && o.LongMediaStride > 1 {
		stride = o.LongMediaStride
	}

	var candidates []Candidate
	evaluated := 0
	for i := 0; i < total; i += stride {
		maxJ := i + windowSpanCap
		if maxJ > total+1 {
			maxJ = total + 1
		}
		for j := i + 1; j < maxJ; j++ {
			if evaluated++; evaluated%cancelPollInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			start := segments[i].Start
			end := segments[j-1].End
			duration := end - start
			if duration < o.MinDuration {
				continue
			}
			if duration > o.MaxDuration {
				break
			}

			parts := make([]string, 0, j-i)
			for _, seg := range segments[i:j] {
				parts = append(parts, seg.Text)
			}
			text := strings.Join(parts, " ")

			score, meta := o.scoreText(text, start, end, i, total)
			meta.SegmentCount = j - i

			candidates = append(candidates, Candidate{
				Start:        start,
				End:          end,
				Duration:     duration,
				Score:        score,
				Text:         text,
				SegmentCount: j - i,
				Metadata:     meta,
			})
		}
	}
	return candidates, nil
}
