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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolateEnv(t *testing.T) {
	t.Run("substitutes nested placeholders", func(t *testing.T) {
		t.Setenv("IE_HOST", "lb.internal")
		t.Setenv("IE_PORT", "5555")

		node := map[string]any{
			"haproxy": map[string]any{
				"base_url": "http://${IE_HOST}:${IE_PORT}",
				"tags":     []any{"${IE_HOST}", "static"},
			},
		}

		out, err := interpolateEnv(node)
		require.NoError(t, err)

		haproxy := out.(map[string]any)["haproxy"].(map[string]any)
		assert.Equal(t, "http://lb.internal:5555", haproxy["base_url"])

		tags := haproxy["tags"].([]any)
		assert.Equal(t, "lb.internal", tags[0])
		assert.Equal(t, "static", tags[1])
	})

	t.Run("leaves non-placeholder strings untouched", func(t *testing.T) {
		t.Parallel()
		out, err := interpolateEnv("plain-value")
		require.NoError(t, err)
		assert.Equal(t, "plain-value", out)
	})

	t.Run("errors on unset variable", func(t *testing.T) {
		t.Parallel()
		_, err := interpolateEnv("${IE_DEFINITELY_UNSET}")
		require.Error(t, err)
	})

	t.Run("passes through non-string scalars", func(t *testing.T) {
		t.Parallel()
		out, err := interpolateEnv(map[string]any{"count": float64(3), "ok": true, "nothing": nil})
		require.NoError(t, err)
		m := out.(map[string]any)
		assert.Equal(t, float64(3), m["count"])
		assert.Equal(t, true, m["ok"])
		assert.Nil(t, m["nothing"])
	})
}
