// Package logging builds the leveled, run-scoped loggers handed to every
// askmail component.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/gologme/log"
	"github.com/oklog/ulid/v2"
)

// Logger is the subset of *log.Logger the pipeline depends on.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

var levels = []string{"error", "warn", "info", "debug"}

// NewRunID returns a sortable identifier for one pipeline run.
func NewRunID() string {
	return ulid.Make().String()
}

// New returns a logger writing to w with every level up to and including
// level enabled. Unknown levels fall back to info.
func New(w io.Writer, level, runID string) *log.Logger {
	cyan := color.New(color.FgCyan).SprintFunc()

	prefix := fmt.Sprintf("[%s] ", cyan("askmail"))
	if runID != "" {
		prefix = fmt.Sprintf("[%s %s] ", cyan("askmail"), runID)
	}

	l := log.New(w, prefix, log.LstdFlags|log.Lmsgprefix)
	for _, name := range enabledLevels(level) {
		l.EnableLevel(name)
	}
	return l
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func enabledLevels(level string) []string {
	level = strings.ToLower(strings.TrimSpace(level))
	for i, name := range levels {
		if name == level {
			return levels[:i+1]
		}
	}
	return levels[:3]
}
