// Package facescan wraps the facescan command-line detector. A scan samples
// frames from a clip at a fixed interval and emits one JSON line per sampled
// frame with the detected face boxes and mouth-openness measurements; the
// wrapper parses that stream into vision samples for tracking and reframing.
package facescan
