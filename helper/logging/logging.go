// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/hashicorp/go-hclog"
)

// NewLogger creates the logger used by the mdbkv binary and tests: written
// to stderr, named "mdbkv", at the given level.
func NewLogger(level log.Level) log.Logger {
	return NewLoggerWithWriter(os.Stderr, level, false)
}

// NewLoggerWithWriter is like NewLogger but writes to w, optionally as JSON.
func NewLoggerWithWriter(w io.Writer, level log.Level, json bool) log.Logger {
	return log.New(&log.LoggerOptions{
		Name:       "mdbkv",
		Level:      level,
		Output:     w,
		JSONFormat: json,
	})
}

// ParseLogLevel parses a level name such as "trace" or "warn".
func ParseLogLevel(s string) (log.Level, error) {
	level := log.LevelFromString(strings.TrimSpace(s))
	if level == log.NoLevel {
		return log.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
