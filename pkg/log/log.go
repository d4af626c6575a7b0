// Copyright 2026 The hugelink Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides a minimal leveled logging facility.
//
// This package is used on the ordinary (non-critical) paths only. Code that
// runs while the process's own mappings are torn down must not call into it;
// see the remap package for the restricted diagnostic path used there.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Level is the log level.
type Level uint32

// The level values below are stable; configuration accepts them as integers,
// so new levels may be added but existing ones must keep their values.
const (
	// Error indicates a problem that the library could not recover from
	// (short of abandoning the current operation).
	Error Level = iota

	// Warning indicates a problem that was worked around, but that may
	// indicate a misconfiguration.
	Warning

	// Info is informational.
	Info

	// Debug is verbose tracing, disabled by default.
	Debug
)

func (l Level) String() string {
	switch l {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	case Debug:
		return "debug"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// Emitter is the final destination for log lines.
type Emitter interface {
	// Emit emits the given log statement. depth is the distance in frames
	// from the caller of the logging function, for emitters that record
	// source locations.
	Emit(depth int, level Level, timestamp time.Time, format string, v ...any)
}

// Writer writes the output to the given writer. If a write fails, messages
// are dropped and a count of dropped messages is emitted once writing
// recovers.
type Writer struct {
	// Next is where the output is written.
	Next io.Writer

	// mu protects fields below.
	mu sync.Mutex

	// errors counts failures to write log messages.
	errors int64
}

// Write writes out the given bytes, dropping the message on failure.
func (l *Writer) Write(data []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.errors > 0 {
		// Attempt to flush a note about the dropped messages first. If
		// this fails, the current message is dropped as well.
		note := fmt.Sprintf("\n*** Dropped %d log messages ***\n", l.errors)
		if _, err := l.Next.Write([]byte(note)); err != nil {
			l.errors++
			return 0, err
		}
		l.errors = 0
	}

	n, err := l.Next.Write(data)
	if err != nil {
		l.errors++
	}
	return n, err
}

// Emit emits the message as a single line of text.
func (l *Writer) Emit(_ int, _ Level, _ time.Time, format string, args ...any) {
	fmt.Fprintf(l, format+"\n", args...)
}

// Logger is a high-level logging interface, satisfied by BasicLogger and by
// any contextual logger a caller may wrap around it.
type Logger interface {
	// Debugf logs a debug statement.
	Debugf(format string, v ...any)

	// Infof logs at an info level.
	Infof(format string, v ...any)

	// Warningf logs at a warning level.
	Warningf(format string, v ...any)

	// Errorf logs at an error level.
	Errorf(format string, v ...any)

	// IsLogging returns true iff this level is being logged. This may be
	// used to short-circuit expensive operations for debugging calls.
	IsLogging(level Level) bool
}

// BasicLogger is the default implementation of Logger.
type BasicLogger struct {
	Level
	Emitter
}

// Debugf implements Logger.Debugf.
func (l *BasicLogger) Debugf(format string, v ...any) {
	l.DebugfAtDepth(1, format, v...)
}

// Infof implements Logger.Infof.
func (l *BasicLogger) Infof(format string, v ...any) {
	l.InfofAtDepth(1, format, v...)
}

// Warningf implements Logger.Warningf.
func (l *BasicLogger) Warningf(format string, v ...any) {
	l.WarningfAtDepth(1, format, v...)
}

// Errorf implements Logger.Errorf.
func (l *BasicLogger) Errorf(format string, v ...any) {
	l.ErrorfAtDepth(1, format, v...)
}

// DebugfAtDepth logs at a specific depth.
func (l *BasicLogger) DebugfAtDepth(depth int, format string, v ...any) {
	if l.IsLogging(Debug) {
		l.Emit(depth+1, Debug, time.Now(), format, v...)
	}
}

// InfofAtDepth logs at a specific depth.
func (l *BasicLogger) InfofAtDepth(depth int, format string, v ...any) {
	if l.IsLogging(Info) {
		l.Emit(depth+1, Info, time.Now(), format, v...)
	}
}

// WarningfAtDepth logs at a specific depth.
func (l *BasicLogger) WarningfAtDepth(depth int, format string, v ...any) {
	if l.IsLogging(Warning) {
		l.Emit(depth+1, Warning, time.Now(), format, v...)
	}
}

// ErrorfAtDepth logs at a specific depth.
func (l *BasicLogger) ErrorfAtDepth(depth int, format string, v ...any) {
	if l.IsLogging(Error) {
		l.Emit(depth+1, Error, time.Now(), format, v...)
	}
}

// IsLogging implements Logger.IsLogging.
func (l *BasicLogger) IsLogging(level Level) bool {
	return level <= l.Level
}

// SetLevel sets the logging level.
func (l *BasicLogger) SetLevel(level Level) {
	l.Level = level
}

// logMu protects mutations of the global logger.
var logMu sync.Mutex

// log is the global logger.
var logger atomic.Pointer[BasicLogger]

// Log retrieves the global logger.
func Log() *BasicLogger {
	return logger.Load()
}

// SetTarget sets the log target.
//
// This will discard any buffered log entries.
func SetTarget(target Emitter) {
	logMu.Lock()
	defer logMu.Unlock()
	old := logger.Load()
	logger.Store(&BasicLogger{Level: old.Level, Emitter: target})
}

// SetLevel sets the log level.
func SetLevel(newLevel Level) {
	logMu.Lock()
	defer logMu.Unlock()
	old := logger.Load()
	logger.Store(&BasicLogger{Level: newLevel, Emitter: old.Emitter})
}

// Debugf logs to the global logger.
func Debugf(format string, v ...any) {
	Log().DebugfAtDepth(1, format, v...)
}

// Infof logs to the global logger.
func Infof(format string, v ...any) {
	Log().InfofAtDepth(1, format, v...)
}

// Warningf logs to the global logger.
func Warningf(format string, v ...any) {
	Log().WarningfAtDepth(1, format, v...)
}

// Errorf logs to the global logger.
func Errorf(format string, v ...any) {
	Log().ErrorfAtDepth(1, format, v...)
}

// IsLogging returns whether the global logger is logging.
func IsLogging(level Level) bool {
	return Log().IsLogging(level)
}

func init() {
	// Store the initial value for the log.
	logger.Store(&BasicLogger{Level: Warning, Emitter: TextEmitter{&Writer{Next: os.Stderr}}})
}
