// Copyright 2025 The Hyperdrive Authors
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

// Package logger wraps log/slog with a rotating file sink, the way the
// teacher's internal/logger wraps slog over a lumberjack writer.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu  sync.RWMutex
	log = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

// Config controls where and how the package-level logger writes.
type Config struct {
	// File is the rotated log file path. Empty means stderr.
	File string
	// Format selects "json" or "text" (default "text").
	Format string
	// Severity is the minimum slog.Level that will be emitted.
	Severity slog.Level
	// MaxSizeMB is the size at which lumberjack rotates the file.
	MaxSizeMB int
	// MaxBackups bounds how many rotated files are kept.
	MaxBackups int
}

// Init installs a new package-level logger built from cfg. Safe to call
// more than once (e.g. after config reload).
func Init(cfg Config) {
	var w io.Writer = os.Stderr
	if cfg.File != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    nonZero(cfg.MaxSizeMB, 100),
			MaxBackups: nonZero(cfg.MaxBackups, 5),
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: cfg.Severity}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	mu.Lock()
	log = slog.New(h)
	mu.Unlock()
}

// ParseSeverity maps a cfg.LogConfig.Severity string ("debug", "info",
// "warn", "error") onto an slog.Level, defaulting to Info for an empty
// or unrecognized value.
func ParseSeverity(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func nonZero(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debug(msg string, args ...any) { get().Debug(msg, args...) }
func Info(msg string, args ...any)  { get().Info(msg, args...) }
func Warn(msg string, args ...any)  { get().Warn(msg, args...) }
func Error(msg string, args ...any) { get().Error(msg, args...) }

// With returns a logger bound to the given key/value pairs, for callers
// that want to attach (e.g.) a path or drive id to a sequence of log
// lines without repeating it.
func With(args ...any) *slog.Logger { return get().With(args...) }
