// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-runewidth"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nextlevelbuilder/hamdam/internal/config"
)

// Setup installs the default logger and returns a closer for the log file.
func Setup(cfg config.LoggingConfig, verbose bool) io.Closer {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		rot := &lumberjack.Logger{
			Filename:   config.ExpandHome(cfg.File),
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 30),
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(os.Stdout, rot)
		closer = rot
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(h))
	return closer
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Preview clips s to width display columns, appending "..." when cut.
// Wide runes (Persian, CJK, emoji) are never split.
func Preview(s string, width int) string {
	return runewidth.Truncate(s, width, "...")
}
