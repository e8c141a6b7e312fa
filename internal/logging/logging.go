// Package logging builds the single zerolog.Logger used across the
// process. Grounded on streamspace-dev-streamspace's internal/logger
// (Initialize(level, pretty), ConsoleWriter branch), adapted to return an
// explicit value threaded through by the caller rather than stashed in a
// package-level global — spec.md §9 asks for exactly that, to avoid a
// pattern that requires acquiring a lock per log line.
package logging

import (
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"wsrouter/internal/config"
)

// New builds a logger whose level and output format are derived from cfg.
// --quiet surfaces errors only; --verbose enables debug; the default is
// info. A colorized ConsoleWriter is used when stderr is an
// interactive terminal; otherwise (piped into another process, redirected
// to a file, running under a supervisor) plain newline-delimited JSON is
// written instead, since ANSI color codes and a human time format only
// help a human reading the terminal directly.
func New(cfg config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch {
	case cfg.Quiet:
		level = zerolog.ErrorLevel
	case cfg.Verbose:
		level = zerolog.DebugLevel
	}

	var w zerolog.Logger
	if isatty.IsTerminal(os.Stderr.Fd()) {
		w = zerolog.New(zerolog.ConsoleWriter{
			Out:        colorable.NewColorableStderr(),
			TimeFormat: "15:04:05",
		})
	} else {
		w = zerolog.New(os.Stderr)
	}

	return w.Level(level).With().Timestamp().Logger()
}
