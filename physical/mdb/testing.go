// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package mdb

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-uuid"
)

// GetEnv opens an environment in a fresh temporary directory, applying the
// overrides in conf, and closes it when the test ends.
func GetEnv(t testing.TB, conf map[string]string) *Env {
	t.Helper()

	id, err := uuid.GenerateUUID()
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  fmt.Sprintf("mdb-%s", id),
		Level: hclog.Trace,
	})

	full := map[string]string{
		"path": filepath.Join(dir, "data.db"),
	}
	for k, v := range conf {
		full[k] = v
	}

	env, err := NewEnv(full, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := env.Close(); err != nil {
			t.Errorf("closing env: %v", err)
		}
	})

	return env
}
