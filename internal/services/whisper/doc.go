// Package whisper wraps the whisper-ctl command-line tool for speech-to-text.
// A transcription run reads the normalized media file and writes a timestamped
// transcript JSON document to the requested path, emitting machine-readable
// progress events on stdout that the wrapper relays to the caller.
package whisper
