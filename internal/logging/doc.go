// Package logging provides slog-based structured logging for clipforge with
// console and JSON handlers, standardized field keys, and helpers that derive
// attributes from stage execution contexts.
package logging
