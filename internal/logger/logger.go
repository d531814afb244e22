// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package logger holds the process-wide structured logger.
package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log atomic.Pointer[zap.Logger]

// Init initializes the logger with the specified level. Entries go to file
// when set, stderr otherwise.
func Init(level, file string) error {
	zapLevel, err := parseLevel(level)
	if err != nil {
		return err
	}

	out := "stderr"
	if file != "" {
		out = file
	}
	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{out},
		ErrorOutputPaths: []string{out},
	}

	l, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	Set(l)

	return nil
}

// Set replaces the process logger.
func Set(l *zap.Logger) {
	log.Store(l)
}

// L returns the process logger, a no-op one before Init.
func L() *zap.Logger {
	if l := log.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

// Debug logs a message at debug level
func Debug(msg string, fields ...zap.Field) {
	if l := log.Load(); l != nil {
		l.Debug(msg, fields...)
	}
}

// Info logs a message at info level
func Info(msg string, fields ...zap.Field) {
	if l := log.Load(); l != nil {
		l.Info(msg, fields...)
	}
}

// Warn logs a message at warn level
func Warn(msg string, fields ...zap.Field) {
	if l := log.Load(); l != nil {
		l.Warn(msg, fields...)
	}
}

// Error logs a message at error level
func Error(msg string, fields ...zap.Field) {
	if l := log.Load(); l != nil {
		l.Error(msg, fields...)
	}
}

// With creates a child logger and adds structured context to it
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	if l := log.Load(); l != nil {
		return l.Sync()
	}
	return nil
}
