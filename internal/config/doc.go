// Package config loads, normalizes, and validates clipforge configuration
// from TOML, providing repository defaults for every section.
package config
