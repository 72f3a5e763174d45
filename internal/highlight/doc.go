// Package highlight selects the most promising clip windows from a transcript.
// Candidates are enumerated over segment boundaries, scored on keyword hooks,
// content quality, duration fit, and position, then reduced to a
// non-overlapping ranked set.
package highlight
