// Package diag provides a level-checked diagnostic sink and run metrics for
// dlt-sort, replacing scattered conditional prints with a single gate.
package diag

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Sink is a leveled logger. Level 0 is always emitted; higher levels are
// gated behind repeated -v flags on the CLI.
type Sink struct {
	logger *log.Logger
	level  int
}

// NewSink returns a Sink writing to w (os.Stderr if nil) at the given
// verbosity level.
func NewSink(w io.Writer, level int) *Sink {
	if w == nil {
		w = os.Stderr
	}
	return &Sink{
		logger: log.New(w, "[dlt-sort] ", log.LstdFlags|log.Lmicroseconds),
		level:  level,
	}
}

// SetLevel changes the verbosity threshold.
func (s *Sink) SetLevel(level int) {
	if s == nil {
		return
	}
	s.level = level
}

// Level reports the current verbosity threshold.
func (s *Sink) Level() int {
	if s == nil {
		return 0
	}
	return s.level
}

// Warnf logs a diagnostic message when level is within the sink's threshold.
func (s *Sink) Warnf(level int, format string, args ...interface{}) {
	if s == nil || s.logger == nil || level > s.level {
		return
	}
	s.logger.Printf(format, args...)
}

// Fatalf logs and terminates the process, mirroring internal/common.Fatalf
// in the teacher repo.
func (s *Sink) Fatalf(format string, args ...interface{}) {
	if s == nil || s.logger == nil {
		log.Fatalf(format, args...)
		return
	}
	s.logger.Fatalf(format, args...)
}

// RotatingWriter returns an io.WriteCloser backed by lumberjack for
// diagnostic output that should be rotated across long batch runs.
func RotatingWriter(path string, maxSizeMB, maxBackups, maxAgeDays int, compress bool) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   compress,
	}
}
