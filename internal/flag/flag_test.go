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

package flag

import (
	"testing"

	"github.com/containeroo/tinyflags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpRequested(t *testing.T) {
	t.Run("show version", func(t *testing.T) {
		t.Parallel()

		_, err := ParseArgs([]string{"--version"}, "1.2.3")
		require.Error(t, err)
		assert.True(t, tinyflags.IsVersionRequested(err))
		assert.EqualError(t, err, "1.2.3")
	})

	t.Run("show help", func(t *testing.T) {
		t.Parallel()
		_, err := ParseArgs([]string{"--help"}, "0.0.0")
		require.Error(t, err)
		assert.True(t, tinyflags.IsHelpRequested(err))
		out := err.Error()
		assert.Contains(t, out, "Usage: haproxy-cloud-discovery [flags]")
	})
}

func TestParseArgs(t *testing.T) {
	t.Run("Default values", func(t *testing.T) {
		args := []string{}
		opts, err := ParseArgs(args, "0.0.0")

		assert.NoError(t, err)
		assert.Equal(t, DefaultConfigPath, opts.ConfigPath)
		assert.False(t, opts.Once)
		assert.False(t, opts.Validate)
		assert.True(t, opts.EnableMetrics)
		assert.Equal(t, ":9090", opts.MetricsAddr)
		assert.Equal(t, EncoderJSON, opts.LogEncoder)
		assert.Equal(t, "error", opts.LogStacktraceLevel)
		assert.False(t, opts.LogDev)
	})

	t.Run("Override values", func(t *testing.T) {
		t.Parallel()

		args := []string{
			"--config", "/tmp/discovery.yaml",
			"--once",
			"--validate",
			"--metrics-enabled=false",
			"--metrics-bind-address", ":9091",
			"--log-encoder", "console",
			"--log-stacktrace-level", "info",
			"--log-devel",
		}

		opts, err := ParseArgs(args, "0.0.0")

		require.NoError(t, err)
		assert.Equal(t, "/tmp/discovery.yaml", opts.ConfigPath)
		assert.True(t, opts.Once)
		assert.True(t, opts.Validate)
		assert.False(t, opts.EnableMetrics)
		assert.Equal(t, ":9091", opts.MetricsAddr)
		assert.Equal(t, "console", opts.LogEncoder)
		assert.Equal(t, "info", opts.LogStacktraceLevel)
		assert.True(t, opts.LogDev)
	})

	t.Run("Invalid flag", func(t *testing.T) {
		t.Parallel()

		args := []string{"--invalid-flag"}
		_, err := ParseArgs(args, "0.0.0")

		require.Error(t, err)
		assert.EqualError(t, err, "unknown flag: --invalid-flag")
	})

	t.Run("Test Usage", func(t *testing.T) {
		t.Parallel()

		args := []string{"--help"}
		_, err := ParseArgs(args, "0.0.0")

		require.Error(t, err)
		assert.True(t, tinyflags.IsHelpRequested(err))
	})

	t.Run("Test Version", func(t *testing.T) {
		t.Parallel()

		args := []string{"--version"}
		_, err := ParseArgs(args, "0.0.0")

		require.Error(t, err)
		assert.True(t, tinyflags.IsVersionRequested(err))
	})

	t.Run("Short config flag", func(t *testing.T) {
		t.Parallel()

		args := []string{"-c", "/etc/discovery/config.yaml"}
		opts, err := ParseArgs(args, "0.0.0")

		require.NoError(t, err)
		assert.Equal(t, "/etc/discovery/config.yaml", opts.ConfigPath)
	})

	t.Run("Valid metrics listen address (:8080)", func(t *testing.T) {
		t.Parallel()

		args := []string{"--metrics-bind-address", ":8080"}
		opts, err := ParseArgs(args, "0.0.0")

		assert.NoError(t, err)
		assert.Equal(t, ":8080", opts.MetricsAddr)
	})

	t.Run("Invalid metrics listen address (invalid)", func(t *testing.T) {
		t.Parallel()

		args := []string{"--metrics-bind-address", ":invalid"}
		_, err := ParseArgs(args, "0.0.0")
		require.Error(t, err)
		assert.EqualError(t, err, "invalid value for flag --metrics-bind-address: invalid TCP address \":invalid\": lookup tcp/invalid: unknown port.")
	})
}

func TestChangedFlags(t *testing.T) {
	t.Parallel()

	args := []string{"--once", "--log-encoder", "console"}
	opts, err := ParseArgs(args, "0.0.0")
	require.NoError(t, err)

	changed := opts.ChangedFlags()
	assert.Contains(t, changed, "once=true")
	assert.Contains(t, changed, "log-encoder=console")
	assert.NotContains(t, changed, "validate=false")
}

func TestWasSet(t *testing.T) {
	t.Parallel()

	t.Run("unknown flag name", func(t *testing.T) {
		t.Parallel()
		opts, err := ParseArgs(nil, "0.0.0")
		require.NoError(t, err)
		assert.False(t, opts.WasSet("does-not-exist"))
	})

	t.Run("unparsed options", func(t *testing.T) {
		t.Parallel()
		assert.False(t, (Options{}).WasSet("config"))
	})
}
