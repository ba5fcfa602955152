// Package logging builds the zap loggers used by both binaries.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects where logs go. With neither a file nor Stderr the logger
// discards everything, which is what the terminal client wants by default.
type Config struct {
	// File is a rotated log file, e.g. "dungeon.log".
	File string
	// Stderr also writes to standard error.
	Stderr bool
	// Level is a zap level name; empty means info.
	Level string
	// Output overrides standard error, for tests.
	Output io.Writer
}

// New returns a console-encoded logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}

	var sinks []zapcore.WriteSyncer
	if cfg.File != "" {
		// 10MB per file, three backups, a week of history.
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		}))
	}
	if cfg.Stderr {
		var w io.Writer = os.Stderr
		if cfg.Output != nil {
			w = cfg.Output
		}
		sinks = append(sinks, zapcore.AddSync(w))
	}
	if len(sinks) == 0 {
		return zap.NewNop(), nil
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.NewMultiWriteSyncer(sinks...), level)
	return zap.New(core, zap.AddCaller()), nil
}
