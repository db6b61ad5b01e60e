// Package logging builds the Remote Store demo's *slog.Logger: one handler
// writing to both stdout and a lumberjack-rotated file. Deliberately a
// single handler rather than a generic multi-handler/dedup-handler/
// async-writer stack — nothing in this process needs more than one sink.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the logging configuration this binary drives: one level/format
// pair and a rotated file under Dir. yaml-tagged per
// internal/remotestore/config.go's ApplyDefaults convention.
type Config struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text, json
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultConfig returns info/text logging, rotated at 100MB x 10 backups x
// 30 days.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		Dir:        "logs",
		MaxSizeMB:  100,
		MaxBackups: 10,
		MaxAgeDays: 30,
	}
}

// ApplyDefaults fills in zero-valued fields with DefaultConfig's values.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Level == "" {
		c.Level = defaults.Level
	}
	if c.Format == "" {
		c.Format = defaults.Format
	}
	if c.Dir == "" {
		c.Dir = defaults.Dir
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = defaults.MaxSizeMB
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = defaults.MaxBackups
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = defaults.MaxAgeDays
	}
}

var activeFile *lumberjack.Logger

// New builds a logger writing to stdout and a lumberjack-rotated file under
// cfg.Dir, text or JSON per cfg.Format.
func New(cfg Config) (*slog.Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "remotestore.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	activeFile = file

	out := io.MultiWriter(os.Stdout, file)
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), nil
}

// Shutdown closes the rotated log file, flushing any buffered writes.
func Shutdown() error {
	if activeFile == nil {
		return nil
	}
	err := activeFile.Close()
	activeFile = nil
	return err
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
