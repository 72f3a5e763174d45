package reframe

import "clipforge/internal/vision"

// Mode is the crop layout for a render.
type Mode string

const (
	ModeSolo      Mode = "solo"
	ModeDuoSwitch Mode = "duo_switch"
	ModeDuoSplit  Mode = "duo_split"
)

// Consecutive multi-speaker observations required before alternating speech
// counts as crosstalk.
const crosstalkStreak = 3

// TrackingParams bundles the tuning knobs shared by prescan and planning.
type TrackingParams struct {
	IOUThreshold      float64
	MaxMisses         int
	SpeakerWindow     int
	SpeakingThreshold float64
	TiePolicy         vision.TiePolicy
	MinDwellFrames    int
}

// ScanStats summarizes a pre-scan of the clip used to pick the layout once.
type ScanStats struct {
	StableTracks    int
	MaxSpeakerCount int
	CrosstalkRuns   int
}

// Prescan replays the scanner samples through a fresh tracker and speaker
// estimator and summarizes the cast. A track counts as stable once its
// history reaches MinDwellFrames observations.
func Prescan(samples []vision.FrameSample, p TrackingParams) ScanStats {
	tracker := vision.NewTracker(p.IOUThreshold, p.MaxMisses)
	est := vision.NewSpeakerEstimator(p.SpeakerWindow, p.SpeakingThreshold, p.TiePolicy)

	stats := ScanStats{}
	for _, sample := range samples {
		tracks := tracker.Observe(sample.FrameIndex, sample.Detections)
		est.Observe(tracks)
		speakers := est.Speakers(tracks)
		if len(speakers) > stats.MaxSpeakerCount {
			stats.MaxSpeakerCount = len(speakers)
		}
		est.UpdateStreak(len(speakers))
		if est.SimultaneousStreak() == crosstalkStreak {
			stats.CrosstalkRuns++
		}
	}

	for _, track := range tracker.AllTracks() {
		if len(track.History) >= p.MinDwellFrames {
			stats.StableTracks++
		}
	}
	return stats
}

// ChooseMode picks the layout for a render from pre-scan statistics: one
// stable face plays solo, two alternate with switch cuts, and sustained
// crosstalk splits the frame.
func ChooseMode(stats ScanStats) Mode {
	if stats.StableTracks <= 1 {
		return ModeSolo
	}
	if stats.CrosstalkRuns >= 1 {
		return ModeDuoSplit
	}
	return ModeDuoSwitch
}

// FocusGate debounces focus changes in duo-switch mode: a new track must hold
// the focus pick for minDwell consecutive samples before the cut happens.
type FocusGate struct {
	minDwell     int
	current      int
	pending      int
	pendingCount int
	started      bool
}

// NewFocusGate builds a gate. A minDwell of zero or one switches immediately.
func NewFocusGate(minDwell int) *FocusGate {
	return &FocusGate{minDwell: minDwell, current: -1, pending: -1}
}

// Observe feeds the latest focus pick and returns the track to follow.
func (g *FocusGate) Observe(candidate int) int {
	if !g.started {
		g.started = true
		g.current = candidate
		return g.current
	}
	if candidate == g.current {
		g.pending = -1
		g.pendingCount = 0
		return g.current
	}
	if candidate != g.pending {
		g.pending = candidate
		g.pendingCount = 1
	} else {
		g.pendingCount++
	}
	if g.pendingCount >= g.minDwell {
		g.current = g.pending
		g.pending = -1
		g.pendingCount = 0
	}
	return g.current
}
