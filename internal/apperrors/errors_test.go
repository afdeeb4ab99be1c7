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

package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigError(t *testing.T) {
	t.Parallel()
	err := NewConfigError("bad value: %d", 5)
	assert.EqualError(t, err, "bad value: 5")
}

func TestDiscoveryError(t *testing.T) {
	t.Parallel()

	t.Run("wraps an underlying error", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("auth failed")
		err := NewDiscoveryError("ec2 discovery failed", cause)
		assert.EqualError(t, err, "ec2 discovery failed: auth failed")
		assert.ErrorIs(t, err, cause)
	})

	t.Run("without an underlying error", func(t *testing.T) {
		t.Parallel()
		err := NewDiscoveryError("ec2 discovery failed", nil)
		assert.EqualError(t, err, "ec2 discovery failed")
	})
}

func TestDataplaneError(t *testing.T) {
	t.Parallel()

	t.Run("409 wraps ErrVersionConflict", func(t *testing.T) {
		t.Parallel()
		err := NewDataplaneError("PUT", "/services/haproxy/transactions/txn-1", 409, "conflict")
		assert.True(t, IsVersionConflict(err))
		assert.Contains(t, err.Error(), "returned HTTP 409")
	})

	t.Run("non-409 does not wrap ErrVersionConflict", func(t *testing.T) {
		t.Parallel()
		err := NewDataplaneError("GET", "/services/haproxy/configuration/backends/web", 500, "boom")
		assert.False(t, IsVersionConflict(err))
	})

	t.Run("transport error has no status code", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("connection refused")
		err := NewDataplaneTransportError("GET", "/services/haproxy/configuration/version", cause)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "dataplane request failed")
	})

	t.Run("AsDataplaneError unwraps", func(t *testing.T) {
		t.Parallel()
		err := NewDataplaneError("GET", "/x", 404, "")
		de, ok := AsDataplaneError(err)
		assert.True(t, ok)
		assert.Equal(t, 404, de.StatusCode)
	})

	t.Run("AsDataplaneError rejects unrelated errors", func(t *testing.T) {
		t.Parallel()
		_, ok := AsDataplaneError(errors.New("unrelated"))
		assert.False(t, ok)
	})
}
