// Copyright 2024 CacheFS Authors.
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

// Package logger is CacheFS's structured logger. It wraps log/slog with a
// severity scheme one notch finer than slog's own (TRACE below DEBUG),
// text or JSON rendering, and optional rotation of the log file through
// lumberjack.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity levels, one finer-grained than the four slog provides.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

// Severity name strings, as accepted by SetLoggingLevel and cfg.LoggingConfig.Severity.
const (
	SeverityTrace   = "TRACE"
	SeverityDebug   = "DEBUG"
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
	SeverityOff     = "OFF"
)

// RotateConfig controls lumberjack-based log rotation.
type RotateConfig struct {
	MaxFileSizeMB   int
	BackupFileCount int
	Compress        bool
}

// DefaultRotateConfig holds conservative size/backup/compression defaults.
func DefaultRotateConfig() RotateConfig {
	return RotateConfig{MaxFileSizeMB: 512, BackupFileCount: 10, Compress: false}
}

type loggerFactory struct {
	mu sync.Mutex

	file         *lumberjack.Logger
	sysWriter    io.Writer // used instead of file when no file path is configured
	format       string    // "text" or "json"
	level        string
	rotateConfig RotateConfig
	programLevel *slog.LevelVar
}

var (
	defaultLoggerFactory = &loggerFactory{
		sysWriter:    os.Stderr,
		format:       "text",
		level:        SeverityInfo,
		rotateConfig: DefaultRotateConfig(),
		programLevel: new(slog.LevelVar),
	}
	defaultLogger = slog.New(defaultLoggerFactory.createHandler(os.Stderr, defaultLoggerFactory.programLevel, ""))
)

func init() {
	setLoggingLevel(SeverityInfo, defaultLoggerFactory.programLevel)
}

// levelString maps our severities onto slog's %s rendering of Level.
func levelString(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return SeverityTrace
	case l < LevelInfo:
		return SeverityDebug
	case l < LevelWarn:
		return SeverityInfo
	case l < LevelError:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// createHandler builds a slog.Handler rendering either "text" (a
// time="..." severity=LEVEL message="..." layout) or JSON.
func (f *loggerFactory) createHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				lvl, _ := a.Value.Any().(slog.Level)
				a.Key = "severity"
				a.Value = slog.StringValue(levelString(lvl))
			case slog.MessageKey:
				a.Value = slog.StringValue(prefix + a.Value.String())
			}
			return a
		},
	}

	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return &textHandler{inner: slog.NewTextHandler(w, opts)}
}

// textHandler rewrites the stock TextHandler's key=value output into the
// `time="..." severity=LEVEL message="..."` shape the package's tests
// assert on.
type textHandler struct {
	inner *slog.TextHandler
}

func (h *textHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &textHandler{inner: h.inner.WithAttrs(attrs).(*slog.TextHandler)}
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	return &textHandler{inner: h.inner.WithGroup(name).(*slog.TextHandler)}
}

func (h *textHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

// currentWriter returns the log file if one is configured, else sysWriter.
// Callers must hold defaultLoggerFactory.mu.
func currentWriter() io.Writer {
	if defaultLoggerFactory.file != nil {
		return defaultLoggerFactory.file
	}
	return defaultLoggerFactory.sysWriter
}

// setLoggingLevel maps a severity name onto programLevel, gating TRACE
// through OFF.
func setLoggingLevel(severity string, programLevel *slog.LevelVar) {
	switch severity {
	case SeverityTrace:
		programLevel.Set(LevelTrace)
	case SeverityDebug:
		programLevel.Set(LevelDebug)
	case SeverityWarning:
		programLevel.Set(LevelWarn)
	case SeverityError:
		programLevel.Set(LevelError)
	case SeverityOff:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(LevelInfo)
	}
}

// SetLoggingLevel reconfigures the default logger's severity threshold.
func SetLoggingLevel(severity string) {
	defaultLoggerFactory.mu.Lock()
	defaultLoggerFactory.level = severity
	factory := defaultLoggerFactory
	factory.mu.Unlock()
	setLoggingLevel(severity, factory.programLevel)
}

// SetLogFormat switches the default logger between "text" and "json"
// rendering; any value other than "json", including the empty string,
// selects text.
func SetLogFormat(format string) {
	defaultLoggerFactory.mu.Lock()
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createHandler(currentWriter(), defaultLoggerFactory.programLevel, ""))
	defaultLoggerFactory.mu.Unlock()
}

// InitLogFile points the default logger at a rotating file on disk. An
// empty path leaves logs on stderr.
func InitLogFile(path string, format string, severity string, rotate RotateConfig) error {
	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()

	defaultLoggerFactory.format = format
	defaultLoggerFactory.rotateConfig = rotate

	if path != "" {
		defaultLoggerFactory.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    rotate.MaxFileSizeMB,
			MaxBackups: rotate.BackupFileCount,
			Compress:   rotate.Compress,
		}
		defaultLoggerFactory.sysWriter = nil
	}

	setLoggingLevel(severity, defaultLoggerFactory.programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createHandler(currentWriter(), defaultLoggerFactory.programLevel, ""))
	return nil
}

func logf(level slog.Level, format string, v ...any) {
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

// Tracef logs at TRACE severity: per-callback detail (path, offset, size)
// that should never appear outside debug runs.
func Tracef(format string, v ...any) { logf(LevelTrace, format, v...) }

// Debugf logs at DEBUG severity.
func Debugf(format string, v ...any) { logf(LevelDebug, format, v...) }

// Infof logs at INFO severity.
func Infof(format string, v ...any) { logf(LevelInfo, format, v...) }

// Warnf logs at WARNING severity.
func Warnf(format string, v ...any) { logf(LevelWarn, format, v...) }

// Errorf logs at ERROR severity.
func Errorf(format string, v ...any) { logf(LevelError, format, v...) }
