// Package logging provides the structured logger used across Kennel Core.
//
// It wraps log/slog with level parsing from config and default
// service/version attributes so every log line is attributable.
package logging
