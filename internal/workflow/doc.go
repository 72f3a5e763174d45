// Package workflow drives queued jobs through the clip pipeline and renders
// through the export queue. A pool of workers claims jobs by status, runs the
// registered stage handler, and advances the status on success; heartbeats
// and a reclaimer recover work orphaned by crashes.
package workflow
