package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production always emits JSON for the
// log pipeline; local runs get text with source locations.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg == nil {
		return slog.Default()
	}
	if cfg.LogFormat == "json" || cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
}
