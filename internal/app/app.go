// Package app wires the analysis loader, the engine and the renderers
// into a runnable application.
package app

import (
	"io"
	"log/slog"
	"strings"
)

// Config holds everything an App needs to run once.
type Config struct {
	AnalysisPath string
	LogFormat    string
	LogLevel     string
	Workers      int
}

// App encapsulates the application's output writer and logger.
type App struct {
	outW   io.Writer
	logger *slog.Logger
}

// NewApp constructs an application with its own configured logger.
func NewApp(outW io.Writer, cfg *Config) *App {
	return &App{
		outW:   outW,
		logger: newLogger(cfg.LogLevel, cfg.LogFormat, outW),
	}
}

// newLogger builds a slog.Logger for the requested level and format.
// Unknown values fall back to info/text; the CLI validates beforehand.
func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
