// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	log "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]log.Level{
		"trace":  log.Trace,
		"DEBUG":  log.Debug,
		" info ": log.Info,
		"warn":   log.Warn,
		"error":  log.Error,
	} {
		level, err := ParseLogLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, level, in)
	}

	_, err := ParseLogLevel("loud")
	require.Error(t, err)
}

func TestNewLoggerWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, log.Info, true)

	logger.Debug("hidden")
	require.Zero(t, buf.Len())

	logger.Info("environment opened", "path", "/tmp/data.db")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "mdbkv", entry["@module"])
	require.Equal(t, "environment opened", entry["@message"])
	require.Equal(t, "/tmp/data.db", entry["path"])
}
