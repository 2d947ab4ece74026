package logger

import (
	"log/slog"
	"os"
)

// New returns the structured logger used across the module. Services take it
// through their options so tests can pass a silent one.
func New() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
