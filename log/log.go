// Package log abstracts the underlying logging implementation.
//
// Separate package from the replay code so that helpers and commands can share
// the same logger without an import cycle.
package log

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level is the minimum log level that will be processed by the logger.
type Level uint8

// Log levels.
const (
	Debug Level = iota + 1 // + 1 to make 0 log level panic.
	Info
	Warn
	Error
)

var levelNames = map[Level]string{
	Debug: "debug",
	Info:  "info",
	Warn:  "warn",
	Error: "error",
}

// String returns the lowercase name of the level.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", uint8(l))
}

// ParseLevel converts a level name such as "warn" into a Level.
func ParseLevel(s string) (Level, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	if want == "warning" {
		want = "warn"
	}
	for level, name := range levelNames {
		if name == want {
			return level, nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// Logger logs messages with different log levels.
type Logger interface {
	Debug(...interface{})
	Debugf(string, ...interface{})
	Info(...interface{})
	Infof(string, ...interface{})
	Warn(...interface{})
	Warnf(string, ...interface{})
	Error(...interface{})
	Errorf(string, ...interface{})

	// WithField returns a Logger that attaches key=value to every entry.
	WithField(key string, value interface{}) Logger
}

type logger struct {
	logrus.FieldLogger
}

func (l logger) WithField(key string, value interface{}) Logger {
	return logger{FieldLogger: l.FieldLogger.WithField(key, value)}
}

// NewLogger creates a logger that outputs to the given writer with the minimum
// log level.
func NewLogger(output io.Writer, minLevel Level) Logger {
	l := logrus.New()
	l.Formatter = &logrus.TextFormatter{}
	l.Out = output

	switch minLevel {
	case Debug:
		l.Level = logrus.DebugLevel
	case Info:
		l.Level = logrus.InfoLevel
	case Warn:
		l.Level = logrus.WarnLevel
	case Error:
		l.Level = logrus.ErrorLevel
	default:
		panic("invalid level given")
	}

	return logger{FieldLogger: l}
}
