package system

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a structured logger writing to w (stderr when nil).
func NewLogger(w io.Writer, level slog.Leveler, asJSON bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard is a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
