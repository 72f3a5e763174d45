// Package services holds shared plumbing for external-tool integrations:
// the error taxonomy stages use to classify failures, and context annotations
// that carry job/render identity through stage execution.
package services
