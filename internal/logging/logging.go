// Package logging provides the log sink used by every snapmirror component.
//
// Lines have the form "<timestamp> - <message>". The destination is either a
// file (appended to) or stderr, chosen when the logger is built.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the printf-style logger interface components depend on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options selects the log destination and level.
type Options struct {
	// File, when set, receives the log lines instead of Output.
	File string
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Output is used when File is empty. Defaults to os.Stderr.
	Output io.Writer
}

// LogrusLogger implements Logger on top of a logrus.Logger.
type LogrusLogger struct {
	l      *logrus.Logger
	closer io.Closer
}

// New builds a logger for opts. Close must be called to release a log file.
func New(opts Options) (*LogrusLogger, error) {
	l := logrus.New()
	l.SetFormatter(&LineFormatter{})

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	l.SetLevel(level)

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var closer io.Closer
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closer = f
	}
	l.SetOutput(out)

	return &LogrusLogger{l: l, closer: closer}, nil
}

// ParseLevel converts a level name to a logrus level. Empty means info.
func ParseLevel(level string) (logrus.Level, error) {
	if strings.TrimSpace(level) == "" {
		return logrus.InfoLevel, nil
	}
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("log level %q: %w", level, err)
	}
	return lv, nil
}

func (g *LogrusLogger) Debug(msg string, args ...any) { g.l.Debugf(msg, args...) }
func (g *LogrusLogger) Info(msg string, args ...any)  { g.l.Infof(msg, args...) }
func (g *LogrusLogger) Warn(msg string, args ...any)  { g.l.Warnf("WARNING: "+msg, args...) }
func (g *LogrusLogger) Error(msg string, args ...any) { g.l.Errorf("ERROR: "+msg, args...) }

// SetLevel changes the level of a running logger.
func (g *LogrusLogger) SetLevel(level string) error {
	lv, err := ParseLevel(level)
	if err != nil {
		return err
	}
	g.l.SetLevel(lv)
	return nil
}

// Close releases the log file, if any.
func (g *LogrusLogger) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer.Close()
}

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}
