// Package logging builds the zerolog loggers hitmux components share.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// DefaultLevel is used when no level is configured
	DefaultLevel = "INFO"
)

var levels = map[string]zerolog.Level{
	"DEBUG": zerolog.DebugLevel,
	"INFO":  zerolog.InfoLevel,
	"WARN":  zerolog.WarnLevel,
	"ERROR": zerolog.ErrorLevel,
	"OFF":   zerolog.Disabled,
}

// ParseLevel maps a level name, case insensitive, to a zerolog level.
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		name = DefaultLevel
	}
	level, ok := levels[strings.ToUpper(name)]
	if !ok {
		return zerolog.NoLevel, fmt.Errorf("invalid log level provided %s", name)
	}
	return level, nil
}

// New returns a JSON structured leveled logger writing to w, or to stderr
// when w is nil.
func New(level string, w io.Writer) (zerolog.Logger, error) {
	zerologLevel, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}

	if w == nil {
		w = os.Stderr
	}

	return zerolog.New(w).Level(zerologLevel).With().Timestamp().Logger(), nil
}

// NewConsole is like New but writes human readable lines.
func NewConsole(level string, w io.Writer, noColor bool) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	return New(level, zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: "15:04:05.000"})
}
