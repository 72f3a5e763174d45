package reframe

import (
	"context"

	"clipforge/internal/vision"
)

// Sampled frames between cancellation polls.
const planPollInterval = 256

// TimelineFrame holds the crop decision for one sampled frame. Secondary is
// set only in duo-split mode.
type TimelineFrame struct {
	FrameIndex int
	TimeSec    float64
	Primary    vision.Rect
	Secondary  vision.Rect
}

// Timeline is the full crop path for a render.
type Timeline struct {
	Mode       Mode
	CropWidth  int
	CropHeight int
	Frames     []TimelineFrame
}

// PlanOptions carries the frame geometry and smoothing factors for planning.
type PlanOptions struct {
	SourceWidth  int
	SourceHeight int
	OutputWidth  int
	OutputHeight int
	Alpha        float64
	SwitchAlpha  float64
	Tracking     TrackingParams
}

// Plan replays the scanner samples and produces a crop rectangle per sampled
// frame for the given mode. Frames with no visible faces hold the previous
// center, which degrades to a fixed center crop when no face ever appears.
// The replay polls ctx periodically so cancellation lands between frames.
func Plan(ctx context.Context, samples []vision.FrameSample, mode Mode, opts PlanOptions) (Timeline, error) {
	alpha := opts.Alpha
	if mode == ModeDuoSwitch && opts.SwitchAlpha > 0 {
		alpha = opts.SwitchAlpha
	}

	primary := NewPlanner(opts.SourceWidth, opts.SourceHeight, opts.OutputWidth, opts.OutputHeight, alpha)
	secondary := NewPlanner(opts.SourceWidth, opts.SourceHeight, opts.OutputWidth, opts.OutputHeight, opts.Alpha)

	tracker := vision.NewTracker(opts.Tracking.IOUThreshold, opts.Tracking.MaxMisses)
	est := vision.NewSpeakerEstimator(opts.Tracking.SpeakerWindow, opts.Tracking.SpeakingThreshold, opts.Tracking.TiePolicy)
	gate := NewFocusGate(opts.Tracking.MinDwellFrames)

	cropW, cropH := primary.CropSize()
	timeline := Timeline{Mode: mode, CropWidth: cropW, CropHeight: cropH}

	for n, sample := range samples {
		if n%planPollInterval == planPollInterval-1 {
			if err := ctx.Err(); err != nil {
				return Timeline{}, err
			}
		}
		updated := tracker.Observe(sample.FrameIndex, sample.Detections)
		est.Observe(updated)
		est.UpdateStreak(len(est.Speakers(updated)))

		frame := TimelineFrame{FrameIndex: sample.FrameIndex, TimeSec: sample.TimeSec}

		switch mode {
		case ModeDuoSplit:
			a, b, ok := splitPair(tracker.ActiveTracks())
			if ok {
				ax, ay := a.Last().Rect.Center()
				bx, by := b.Last().Rect.Center()
				frame.Primary = primary.Step(ax, ay, true)
				frame.Secondary = secondary.Step(bx, by, true)
			} else {
				frame.Primary = primary.Step(0, 0, false)
				frame.Secondary = secondary.Step(0, 0, false)
			}
		case ModeDuoSwitch:
			frame.Primary = stepTowardFocus(primary, est, gate, tracker.ActiveTracks())
		default:
			frame.Primary = stepTowardFocus(primary, est, nil, tracker.ActiveTracks())
		}

		timeline.Frames = append(timeline.Frames, frame)
	}

	return timeline, nil
}

// CenterTimeline is the fixed-crop fallback when tracking is disabled or the
// scan produced no usable samples.
func CenterTimeline(opts PlanOptions) Timeline {
	planner := NewPlanner(opts.SourceWidth, opts.SourceHeight, opts.OutputWidth, opts.OutputHeight, opts.Alpha)
	cropW, cropH := planner.CropSize()
	return Timeline{
		Mode:       ModeSolo,
		CropWidth:  cropW,
		CropHeight: cropH,
		Frames: []TimelineFrame{
			{FrameIndex: 0, TimeSec: 0, Primary: planner.CenterCrop()},
		},
	}
}

func stepTowardFocus(planner *Planner, est *vision.SpeakerEstimator, gate *FocusGate, tracks []*vision.Track) vision.Rect {
	focus, ok := est.Focus(tracks)
	if !ok {
		return planner.Step(0, 0, false)
	}

	targetID := focus.TrackID
	if gate != nil {
		targetID = gate.Observe(focus.TrackID)
	}
	for _, track := range tracks {
		if track.ID == targetID {
			x, y := track.Last().Rect.Center()
			return planner.Step(x, y, true)
		}
	}
	x, y := focus.Rect.Center()
	return planner.Step(x, y, true)
}

// splitPair picks the two largest active tracks for the split layout.
func splitPair(tracks []*vision.Track) (*vision.Track, *vision.Track, bool) {
	if len(tracks) < 2 {
		return nil, nil, false
	}
	var first, second *vision.Track
	for _, track := range tracks {
		area := track.Last().Rect.Area()
		switch {
		case first == nil || area > first.Last().Rect.Area():
			second = first
			first = track
		case second == nil || area > second.Last().Rect.Area():
			second = track
		}
	}
	// Present the pair left-to-right so the layout is stable across frames.
	if second.Last().Rect.X < first.Last().Rect.X {
		first, second = second, first
	}
	return first, second, true
}
