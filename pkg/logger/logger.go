// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured log field.
type Field = zapcore.Field

// Field constructors re-exported so callers only import this package.
var (
	String   = zap.String
	Int      = zap.Int
	Float64  = zap.Float64
	Bool     = zap.Bool
	Duration = zap.Duration
	Error    = zap.Error
	Any      = zap.Any
)

// Logger wraps a zap.Logger so components can name themselves.
type Logger struct {
	*zap.Logger
}

// Config selects level (debug, info, warn, error) and format (json, console).
type Config struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// nameWidth keeps component names aligned in console output.
const nameWidth = 12

func colorLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	color := ""
	switch level {
	case zapcore.ErrorLevel:
		color = "\033[1;31m"
	case zapcore.WarnLevel:
		color = "\033[1;33m"
	case zapcore.InfoLevel:
		color = "\033[1;36m"
	case zapcore.DebugLevel:
		color = "\033[1;37m"
	}
	if color == "" {
		enc.AppendString(level.String())
		return
	}
	enc.AppendString(color + level.String() + "\033[0m")
}

func paddedName(name string, enc zapcore.PrimitiveArrayEncoder) {
	parts := strings.Split(name, ".")
	short := parts[len(parts)-1]
	if len(short) > nameWidth {
		short = short[:nameWidth]
	}
	enc.AppendString(short + strings.Repeat(" ", nameWidth-len(short)))
}

// New builds a logger writing to stdout.
func New(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      zapcore.OmitKey,
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if level == zapcore.DebugLevel {
		encCfg.CallerKey = "caller"
		encCfg.EncodeCaller = zapcore.ShortCallerEncoder
		opts = append(opts, zap.AddCaller())
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "console":
		encCfg.EncodeLevel = colorLevel
		encCfg.EncodeName = paddedName
		encoder = zapcore.NewConsoleEncoder(encCfg)
	case "json", "":
		encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		encCfg.EncodeName = zapcore.FullNameEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	return &Logger{Logger: zap.New(core, opts...)}, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unsupported log level: %s", level)
	}
}

// With returns a child logger carrying fields.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named returns a child logger for a component.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// WithRequestID tags log lines with the HTTP request id.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(zap.String("request_id", requestID))
}
