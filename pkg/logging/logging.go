// Package logging builds the slog loggers used by node
// binaries. Output goes to stderr by default because
// stdout carries the protocol.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Output formats.
const (
	FormatTint = "tint"
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures New.
type Options struct { // A
	Level  slog.Level
	Format string
	// NoColor disables ANSI colours in the tint format.
	NoColor   bool
	AddSource bool
}

// New returns a logger writing to w in the requested
// format. A nil w means os.Stderr; an empty format means
// tint.
func New(w io.Writer, opts Options) (*slog.Logger, error) { // A
	if w == nil {
		w = os.Stderr
	}

	var handler slog.Handler
	switch opts.Format {
	case "", FormatTint:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.RFC3339,
			AddSource:  opts.AddSource,
			NoColor:    opts.NoColor,
		})
	case FormatText:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     opts.Level,
			AddSource: opts.AddSource,
		})
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     opts.Level,
			AddSource: opts.AddSource,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return slog.New(handler), nil
}

// ParseLevel maps debug, info, warn (or warning) and
// error to a slog.Level, ignoring case.
func ParseLevel(s string) (slog.Level, error) { // A
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger { // H
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
