// Package logging builds the zap loggers every other package receives by
// injection, following the ambient-stack convention described in
// SPEC_FULL.md §10.1.
package logging

import "go.uber.org/zap"

// NewProduction builds the streamer's logger: JSON, info level, matching
// zap's production defaults.
func NewProduction() (*zap.Logger, error) {
	return zap.NewProduction()
}

// NewDevelopment builds the local viewer's logger: console-friendly,
// debug level.
func NewDevelopment() (*zap.Logger, error) {
	return zap.NewDevelopment()
}
