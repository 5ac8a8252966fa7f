// Package log sets up the default slog logger and carries loggers through contexts.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const loggerCtxKey ctxKey = "logger"

// Debug enables debug logging and additional debugging output (e.g. html dumps).
var Debug bool

// FileConfig configures an optional rotating log file that receives
// the same records as stdout.
type FileConfig struct {
	File       string `yaml:"file" env:"STEPREC_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env-default:"10"`
	MaxBackups int    `yaml:"max_backups" env-default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" env-default:"7"`
}

func level() slog.Level {
	if Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// InitializeDefaultLogger installs a text logger on stdout as slog default.
// If fc names a file, records are also written to a rotating log file.
func InitializeDefaultLogger(fc *FileConfig) {
	var w io.Writer = os.Stdout
	if fc != nil && fc.File != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   fc.File,
			MaxSize:    fc.MaxSizeMB,
			MaxBackups: fc.MaxBackups,
			MaxAge:     fc.MaxAgeDays,
		})
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level()}))
	slog.SetDefault(logger)
}

func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerCtxKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
