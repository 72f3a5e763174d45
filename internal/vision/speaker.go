package vision

// TiePolicy selects which signal dominates when picking the focus track.
type TiePolicy string

const (
	// TieVariance weighs mouth-movement variance far above face size.
	TieVariance TiePolicy = "variance"
	// TieArea weighs face size far above mouth-movement variance.
	TieArea TiePolicy = "area"
)

const minVarianceSamples = 3

// Focus is the chosen attention target for one sampled frame.
type Focus struct {
	TrackID    int
	Rect       Rect
	Confidence float64
}

// SpeakerEstimator maintains per-track mouth history and decides who holds
// the frame's attention.
type SpeakerEstimator struct {
	window       int
	threshold    float64
	policy       TiePolicy
	history      map[int][]float64
	simultaneous int
}

// NewSpeakerEstimator builds an estimator. A track counts as speaking when the
// variance of its last window mouth samples exceeds the threshold.
func NewSpeakerEstimator(window int, threshold float64, policy TiePolicy) *SpeakerEstimator {
	if window < minVarianceSamples {
		window = minVarianceSamples
	}
	if policy != TieArea {
		policy = TieVariance
	}
	return &SpeakerEstimator{
		window:    window,
		threshold: threshold,
		policy:    policy,
		history:   make(map[int][]float64),
	}
}

// Observe folds the latest observation of each track into the mouth history.
func (e *SpeakerEstimator) Observe(tracks []*Track) {
	for _, track := range tracks {
		last := track.Last()
		if !last.HasMouth {
			continue
		}
		samples := append(e.history[track.ID], last.MouthOpenness)
		if len(samples) > e.window {
			samples = samples[len(samples)-e.window:]
		}
		e.history[track.ID] = samples
	}
}

// Speaking reports whether a track's recent mouth movement crosses the
// speaking threshold. Fewer than three samples never count as speaking.
func (e *SpeakerEstimator) Speaking(trackID int) bool {
	samples := e.history[trackID]
	if len(samples) < minVarianceSamples {
		return false
	}
	return variance(samples) > e.threshold
}

// Speakers returns the ids of all currently speaking tracks.
func (e *SpeakerEstimator) Speakers(tracks []*Track) []int {
	var speakers []int
	for _, track := range tracks {
		if e.Speaking(track.ID) {
			speakers = append(speakers, track.ID)
		}
	}
	return speakers
}

// SimultaneousStreak counts consecutive observations with two or more
// speakers. Callers use it to decide when alternating speech has become
// genuine crosstalk.
func (e *SpeakerEstimator) SimultaneousStreak() int {
	return e.simultaneous
}

// UpdateStreak advances or resets the simultaneous-speaking counter.
func (e *SpeakerEstimator) UpdateStreak(speakerCount int) {
	if speakerCount >= 2 {
		e.simultaneous++
		return
	}
	e.simultaneous = 0
}

// Focus picks the attention target among the given tracks. Each track scores
// on mouth variance and face area with the dominant signal set by the tie
// policy; confidence is the winner's share of the total score.
func (e *SpeakerEstimator) Focus(tracks []*Track) (Focus, bool) {
	if len(tracks) == 0 {
		return Focus{}, false
	}

	best := Focus{TrackID: -1}
	bestScore := -1.0
	totalScore := 0.0
	for _, track := range tracks {
		score := e.trackScore(track)
		totalScore += score
		if score > bestScore {
			bestScore = score
			best = Focus{TrackID: track.ID, Rect: track.Last().Rect}
		}
	}
	if best.TrackID < 0 {
		return Focus{}, false
	}
	if totalScore > 0 {
		best.Confidence = bestScore / totalScore
	}
	return best, true
}

func (e *SpeakerEstimator) trackScore(track *Track) float64 {
	score := 0.0
	samples := e.history[track.ID]
	varianceTerm := 0.0
	if len(samples) >= minVarianceSamples {
		varianceTerm = variance(samples)
	}
	areaTerm := float64(track.Last().Rect.Area())

	switch e.policy {
	case TieArea:
		score = areaTerm*1000 + varianceTerm/1000
	default:
		score = varianceTerm*1000 + areaTerm/1000
	}
	return score
}

// variance is the population variance of the samples.
func variance(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range samples {
		mean += v
	}
	mean /= float64(len(samples))

	sum := 0.0
	for _, v := range samples {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(samples))
}
