// Package logging provides the structured logger used throughout the
// reactor, channel, and driver packages. It is a thin façade over
// logiface, backed by zerolog, so callers can swap in any other logiface
// writer (or the built-in no-op) without touching call sites.
package logging

import (
	"io"
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Event is the concrete logiface event type used package-wide.
type Event = izerolog.Event

// Logger is the concrete logiface logger type used package-wide.
type Logger = logiface.Logger[*Event]

// L exposes the option constructors for Logger, following the
// LoggerFactory convention logiface itself uses to keep the event type
// out of every call site but one.
var L = izerolog.L

// disabled is returned by Disabled when the caller wants no output at all;
// logiface treats a logger built with LevelDisabled as a no-op on the hot
// path, so this costs nothing per call.
var disabled = L.New(L.WithLevel(logiface.LevelDisabled))

// Disabled returns a logger that discards everything.
func Disabled() *Logger { return disabled }

// New builds a logger writing pretty console output at or above level to w.
func New(w io.Writer, level logiface.Level) *Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}).With().Timestamp().Logger()
	return L.New(L.WithZerolog(zl), L.WithLevel(level))
}

// NewJSON builds a logger writing newline-delimited JSON at or above level
// to w, suitable for log aggregation rather than terminal use.
func NewJSON(w io.Writer, level logiface.Level) *Logger {
	zl := zerolog.New(w).With().Timestamp().Logger()
	return L.New(L.WithZerolog(zl), L.WithLevel(level))
}

// Default returns the package's default logger: JSON to stderr at
// informational level, mirroring the level most production deployments
// run at.
func Default() *Logger {
	return NewJSON(os.Stderr, logiface.LevelInformational)
}
