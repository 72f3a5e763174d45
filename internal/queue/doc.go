// Package queue persists jobs, clips, and renders in SQLite and owns the
// lifecycle status model the workflow manager advances. Jobs move through a
// fixed linear stage order; clips are immutable selections produced by the
// highlighting stage; renders track per-clip vertical exports.
package queue
