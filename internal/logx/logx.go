// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package logx configures the process-wide structured logger from the
// SENTRI_LOG environment variable, the way HydraDNS derives its slog
// handler from HYDRADNS_LOG_LEVEL.
package logx

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// LevelTrace is finer than slog's built-in levels; Sentri maps "trace" onto it.
const LevelTrace = slog.Level(-8)

// Config controls how the process-wide logger is built.
type Config struct {
	// EnvVar is the environment variable consulted for the verbosity level.
	EnvVar string
	// LogFile, if non-empty, additionally writes log output to this path.
	LogFile string
}

// New builds a *slog.Logger from the environment and returns it along with
// the run ID attached to every line it emits.
func New(cfg Config) (*slog.Logger, uuid.UUID, error) {
	if cfg.EnvVar == "" {
		cfg.EnvVar = "SENTRI_LOG"
	}

	level := parseLevel(os.Getenv(cfg.EnvVar))
	out := io.Writer(os.Stderr)

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, uuid.UUID{}, err
		}
		out = io.MultiWriter(os.Stderr, f)
	}

	runID := uuid.New()
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With("run_id", runID.String())
	slog.SetDefault(logger)
	return logger, runID, nil
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}
