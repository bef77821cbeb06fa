// Package logger wraps zap for the viewer. A colored console sink and an
// optional rotating file sink share one level that can be changed at runtime.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the global logger. It discards everything until Setup runs,
// so packages can log from tests without setup.
var Log = zap.NewNop()

var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Rotation controls when the log file rolls over.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultRotation keeps three compressed 20MB files for a week.
var DefaultRotation = Rotation{MaxSizeMB: 20, MaxBackups: 3, MaxAgeDays: 7, Compress: true}

// Options selects the sinks of the global logger.
type Options struct {
	Level   string
	File    string
	Rotate  Rotation
	Console bool
}

// Init logs to stdout and, when file is set, to a rotating file.
func Init(levelName, file string) error {
	return Setup(Options{Level: levelName, File: file, Rotate: DefaultRotation, Console: true})
}

// Setup replaces the global logger.
func Setup(opts Options) error {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	var cores []zapcore.Core
	if opts.Console {
		cores = append(cores, zapcore.NewCore(encoder(true), zapcore.Lock(os.Stdout), level))
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("log directory: %w", err)
		}
		sink := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.Rotate.MaxSizeMB,
			MaxBackups: opts.Rotate.MaxBackups,
			MaxAge:     opts.Rotate.MaxAgeDays,
			Compress:   opts.Rotate.Compress,
			LocalTime:  true,
		}
		cores = append(cores, zapcore.NewCore(encoder(false), zapcore.AddSync(sink), level))
	}

	level.SetLevel(lvl)
	if len(cores) == 0 {
		Log = zap.NewNop()
		return nil
	}
	Log = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return nil
}

func encoder(color bool) zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.ConsoleSeparator = " "
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	if color {
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// ParseLevel converts a config level name. An empty name means info.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log level %q: %w", name, err)
	}
	return lvl, nil
}

// SetLevel changes the level of every sink without rebuilding the logger.
func SetLevel(name string) error {
	lvl, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// Level reports the current level.
func Level() zapcore.Level {
	return level.Level()
}

// Named returns a child of the global logger for one subsystem.
func Named(name string) *zap.Logger {
	return Log.Named(name)
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = Log.Sync()
}

func Debug(msg string, fields ...zap.Field) { Log.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Log.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Log.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Log.Error(msg, fields...) }
