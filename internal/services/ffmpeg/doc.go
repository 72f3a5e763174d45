// Package ffmpeg wraps the ffmpeg and ffprobe command-line tools for media
// inspection, normalization, segment extraction, tracked-crop rendering, and
// presentation extras (captions, watermark, thumbnails).
//
// It exposes interfaces so stage handlers can swap in fakes; the real
// implementation shells out with context-aware commands and reports progress
// parsed from ffmpeg's machine-readable output.
package ffmpeg
