package highlight

import (
	"context"
	"fmt"
	"sort"

	"clipforge/internal/transcript"
)

// Highlight is one selected clip with presentation fields.
type Highlight struct {
	Start    float64
	End      float64
	Duration float64
	Score    float64
	Title    string
	Snippet  string
	Metadata Metadata
}

// Generate enumerates, scores, and selects highlights from a transcript.
// The result is deterministic for identical input: ranking is a stable sort
// with enumeration order (earlier start) breaking score ties. An empty result
// means the transcript had no window satisfying the duration bounds.
// Enumeration polls ctx periodically so a cancelled render does not finish
// scoring a long transcript first.
func Generate(ctx context.Context, t *transcript.Transcript, opts Options) ([]Highlight, error) {
	if len(t.Segments) == 0 {
		return nil, nil
	}

	target := opts.Count
	if target <= 0 {
		target = autoClipCount(t.Duration, opts.BaseCount)
	}

	candidates, err := opts.generateCandidates(ctx, t)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	selected := resolveOverlaps(candidates, target, opts.MinGap)

	highlights := make([]Highlight, 0, len(selected))
	for i, c := range selected {
		highlights = append(highlights, Highlight{
			Start:    c.Start,
			End:      c.End,
			Duration: c.Duration,
			Score:    c.Score,
			Title:    clipTitle(i, c.Metadata),
			Snippet:  snippet(c.Text),
			Metadata: c.Metadata,
		})
	}
	return highlights, nil
}

// resolveOverlaps keeps the highest-scored candidates that neither overlap a
// prior selection nor crowd one. A candidate must leave at least minGap
// seconds on whichever side of a selection it falls.
func resolveOverlaps(candidates []Candidate, target int, minGap float64) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	var selected []Candidate
	for _, candidate := range ranked {
		conflicts := false
		for _, sel := range selected {
			if candidate.End <= sel.Start-minGap || candidate.Start >= sel.End+minGap {
				continue
			}
			conflicts = true
			break
		}
		if conflicts {
			continue
		}
		selected = append(selected, candidate)
		if len(selected) >= target {
			break
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Start < selected[j].Start
	})
	return selected
}

// autoClipCount scales the clip target with media length. Longer media earns
// more clips, very long media scales at one clip per three minutes, and the
// result stays within [5, 50].
func autoClipCount(totalDuration float64, baseCount int) int {
	minutes := totalDuration / 60

	var count int
	switch {
	case minutes <= 10:
		count = maxInt(baseCount, 5)
	case minutes <= 30:
		count = maxInt(baseCount, 12)
	case minutes <= 60:
		count = maxInt(baseCount, 20)
	case minutes <= 120:
		count = maxInt(baseCount, 30)
	default:
		count = maxInt(baseCount, int(minutes/3))
	}

	if count < 5 {
		count = 5
	}
	if count > 50 {
		count = 50
	}
	return count
}

func clipTitle(index int, meta Metadata) string {
	title := fmt.Sprintf("Highlight %d", index+1)
	if len(meta.Categories) > 0 {
		if hint, ok := categoryTitleHints[meta.Categories[0]]; ok {
			title += " " + hint
		}
	}
	return title
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= 200 {
		return text
	}
	return string(runes[:200]) + "..."
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
