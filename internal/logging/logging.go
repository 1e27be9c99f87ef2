// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package logging installs the process-wide slog logger for the commands.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/c0microsd-toolkit/internal/config"
)

// Level maps a configured level name to a slog level. Unknown names are
// info.
func Level(name string) slog.Level {
	switch name {
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

// Setup sets the default logger from cfg. Logs go to cfg.File when set,
// otherwise to stderr. stdout is left to the commands' own output.
func Setup(cfg config.LogConfig, stderr io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: Level(cfg.Level),
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to open log file, falling back to stderr: %v\n", err)
			handler = slog.NewTextHandler(stderr, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
