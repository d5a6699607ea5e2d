// Package logging builds the zerolog loggers used by the CLI.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Options configures New.
type Options struct {
	// Verbose enables debug output.
	Verbose bool
	// Quiet limits output to errors.
	Quiet bool
	// RunID is attached to every line when non-empty.
	RunID string
}

// New returns a console logger writing to f. Colors are used only when f is
// a terminal.
func New(f *os.File, opts Options) zerolog.Logger {
	return newLogger(ConsoleWriter(f), opts)
}

func newLogger(w io.Writer, opts Options) zerolog.Logger {
	level := zerolog.InfoLevel
	switch {
	case opts.Quiet:
		level = zerolog.ErrorLevel
	case opts.Verbose:
		level = zerolog.DebugLevel
	}
	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if opts.RunID != "" {
		ctx = ctx.Str("run", opts.RunID)
	}
	return ctx.Logger()
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ConsoleWriter returns a human-readable zerolog writer for f.
func ConsoleWriter(f *os.File) io.Writer {
	return zerolog.ConsoleWriter{Out: f, NoColor: !isTerminal(f), TimeFormat: time.TimeOnly}
}
