// Package reframe plans vertical crop rectangles over a clip. A planner
// smooths the attention point with an exponential moving average, keeps the
// crop box inside the source frame, and supports solo, duo-switch, and
// duo-split layouts.
package reframe
