package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// logLevel is shared by all handlers so the level can be changed at runtime
// when the config file is edited.
var logLevel slog.LevelVar

// InitLogger sets up the application logger with file rotation and installs
// it as the slog default.
func InitLogger(cfg *LoggingConfig) (*slog.Logger, error) {
	logLevel.Set(parseLogLevel(cfg.Level))

	file := cfg.File
	if file == "" {
		file = filepath.Join(getStateDir(), "fincast.log")
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	var writer io.Writer = &lumberjack.Logger{
		Filename:   file,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	opts := &slog.HandlerOptions{Level: &logLevel}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// SetLogLevel changes the level of every logger created by InitLogger.
func SetLogLevel(level string) {
	logLevel.Set(parseLogLevel(level))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
