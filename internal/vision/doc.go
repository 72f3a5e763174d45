// Package vision turns per-frame face detections into stable tracks and an
// active-speaker signal. Detections come from the external face scanner;
// tracking is greedy IOU matching against an arena of track records, and
// speaking is inferred from mouth-openness variance over a rolling window.
package vision
