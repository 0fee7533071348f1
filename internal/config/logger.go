package config

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger writes JSON at info level in production and text at debug level
// elsewhere, with source locations in development.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		AddSource: cfg.IsDevelopment(),
	}

	if cfg.IsProduction() {
		opts.Level = slog.LevelInfo
		handler = slog.NewJSONHandler(w, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(slog.String("service", "facecheck"))
}
