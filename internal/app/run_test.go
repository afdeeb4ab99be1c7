/*
Copyright 2025 containeroo.ch

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

const validMinimalConfig = `
aws:
  region: eu-west-1
haproxy:
  base_url: http://lb:5555
`

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("Request version", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		args := []string{"--version"}
		out := &bytes.Buffer{}

		err := Run(ctx, "v0.0.0", args, out)

		assert.NoError(t, err)
		assert.Equal(t, "v0.0.0", out.String())
	})

	t.Run("Invalid args", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		args := []string{"--invalid-flag"}
		out := &bytes.Buffer{}

		err := Run(ctx, "v0.0.0", args, out)

		require.Error(t, err)
		assert.EqualError(t, err, "error parsing arguments: unknown flag: --invalid-flag")
	})

	t.Run("Invalid log encoder", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		args := []string{"--log-encoder", "invalid"}
		out := &bytes.Buffer{}

		err := Run(ctx, "v0.0.0", args, out)

		require.Error(t, err)
		assert.EqualError(t, err, "error parsing arguments: invalid value for flag --log-encoder: must be one of: json, console.")
	})

	t.Run("Missing config file", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		args := []string{"--config", "/tmp/does-not-exist.yaml"}
		out := &bytes.Buffer{}

		err := Run(ctx, "v0.0.0", args, out)

		require.Error(t, err)
		assert.ErrorContains(t, err, "failed to load configuration")
	})

	t.Run("Invalid config rejected before any cloud client is built", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		path := writeConfigFile(t, "haproxy:\n  base_url: http://lb:5555\n") // no provider configured
		args := []string{"--config", path}
		out := &bytes.Buffer{}

		err := Run(ctx, "v0.0.0", args, out)

		require.Error(t, err)
		assert.ErrorContains(t, err, "no cloud provider configured")
	})

	t.Run("Validate flag exits before building a daemon", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		path := writeConfigFile(t, validMinimalConfig)
		args := []string{"--config", path, "--validate"}
		out := &bytes.Buffer{}

		err := Run(ctx, "v0.0.0", args, out)

		assert.NoError(t, err)
	})
}
