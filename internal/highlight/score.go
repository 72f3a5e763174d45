package highlight

import (
	"math"
	"strings"
)

const (
	maxKeywordScore = 35
	questionBonus   = 5
)

// Metadata captures the scoring signals behind a candidate, persisted alongside
// the clip for CLI display.
type Metadata struct {
	Categories      []string `json:"categories"`
	WordCount       int      `json:"word_count"`
	UniqueWordRatio float64  `json:"unique_word_ratio"`
	HasQuestion     bool     `json:"has_question"`
	SegmentCount    int      `json:"segment_count"`
}

// scoreText rates one candidate window out of 100 points:
// hook keywords up to 35, content quality up to 25, duration fit up to 25,
// position up to 15.
func (o Options) scoreText(text string, start, end float64, segmentIndex, totalSegments int) (float64, Metadata) {
	score := 0.0
	meta := Metadata{}
	textLower := strings.ToLower(text)
	clipDuration := end - start

	keywordScore := 0.0
	for _, category := range keywordCategories {
		matches := 0.0
		for _, kw := range category.keywords {
			if strings.Contains(textLower, kw) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		meta.Categories = append(meta.Categories, category.name)
		contribution := matches * category.weight
		if limit := category.weight * 2; contribution > limit {
			contribution = limit
		}
		keywordScore += contribution
	}
	if keywordScore > maxKeywordScore {
		keywordScore = maxKeywordScore
	}
	score += keywordScore

	words := wordPattern.FindAllString(textLower, -1)
	meta.WordCount = len(words)
	if len(words) > 0 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[w] = struct{}{}
		}
		meta.UniqueWordRatio = float64(len(unique)) / float64(len(words))
		score += meta.UniqueWordRatio * 15

		switch {
		case len(words) >= 50 && len(words) <= 150:
			score += 5
		case len(words) >= 30 && len(words) <= 200:
			score += 3
		}
	}

	for _, pattern := range questionPatterns {
		if pattern.MatchString(textLower) {
			meta.HasQuestion = true
			score += questionBonus
			break
		}
	}

	if clipDuration >= o.MinDuration && clipDuration <= o.MaxDuration {
		span := o.MaxDuration - o.MinDuration
		deviation := math.Abs(clipDuration - o.IdealDuration)
		switch {
		case span <= 0 || deviation <= span/3:
			score += 25
		case deviation <= 2*span/3:
			score += 20
		default:
			score += 15
		}
	}

	if totalSegments > 0 {
		positionRatio := float64(segmentIndex) / float64(totalSegments)
		switch {
		case positionRatio < 0.15 || positionRatio > 0.85:
			score += 10
		case positionRatio >= 0.4 && positionRatio <= 0.6:
			score += 8
		default:
			score += 5
		}
	}

	return score, meta
}
