// Package objlog owns the single process-wide logger used by every other
// package — config loading, the copy engine, and progress reporting all log
// through the instance Init sets up, rather than opening their own.
package objlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. It is the zero value (discarding
// everything) until Init is called, so packages that log before CLI
// startup (tests, mainly) don't panic — they just produce no output.
var Logger zerolog.Logger

// Config controls Init.
type Config struct {
	// Verbosity is 0, 1, or 2, mapping to warn/info/debug.
	Verbosity int

	// JSON selects zerolog's JSON encoder; otherwise a console writer is
	// used. Driven by OBJCOPY_LOG_FORMAT at the CLI boundary.
	JSON bool

	// Output defaults to os.Stderr (spec: diagnostics go to stderr).
	Output io.Writer
}

// Init sets up the global Logger. Called once, at CLI entry.
func Init(cfg Config) {
	level := zerolog.WarnLevel
	switch {
	case cfg.Verbosity >= 2:
		level = zerolog.DebugLevel
	case cfg.Verbosity == 1:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.JSON {
		Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
	Logger = Logger.With().Str("logger", "objcopy").Logger()
}
