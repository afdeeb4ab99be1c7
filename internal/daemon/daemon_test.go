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

package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/containeroo/haproxy-cloud-discovery/internal/config"
	"github.com/containeroo/haproxy-cloud-discovery/internal/discovery"
)

type fakeClient struct {
	instances []discovery.Instance
	err       error
	calls     int
}

func (f *fakeClient) DiscoverAll(context.Context) ([]discovery.Instance, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.instances, nil
}

type fakeDetector struct {
	changed []*discovery.Service
	removed []discovery.BackendKey
	resets  int
}

func (f *fakeDetector) Detect(map[discovery.BackendKey]*discovery.Service) ([]*discovery.Service, []discovery.BackendKey) {
	return f.changed, f.removed
}

func (f *fakeDetector) Reset() { f.resets++ }

type fakeReconciler struct {
	calls int
	err   error
}

func (f *fakeReconciler) Reconcile(context.Context, []*discovery.Service, []discovery.BackendKey) error {
	f.calls++
	return f.err
}

func testPolling() config.PollingConfig {
	return config.PollingConfig{IntervalSeconds: 30, JitterSeconds: 5, MaxBackoffSeconds: 300, BackoffBaseSeconds: 5}
}

func newTestDaemon(client *fakeClient, det *fakeDetector, recon *fakeReconciler) *Daemon {
	return &Daemon{
		client:   client,
		filter:   discovery.NewTagFilter(config.TagsConfig{}, logr.Discard()),
		detector: det,
		recon:    recon,
		polling:  testPolling(),
		logger:   logr.Discard(),
		reload:   make(chan struct{}, 1),
	}
}

func TestDaemonCycle(t *testing.T) {
	t.Parallel()

	t.Run("reconciles when the detector reports changes", func(t *testing.T) {
		t.Parallel()
		client := &fakeClient{instances: []discovery.Instance{{InstanceID: "i-1", PrivateIP: "10.0.0.1", ServiceName: "web", ServicePort: 80}}}
		det := &fakeDetector{changed: []*discovery.Service{{Key: discovery.BackendKey{ServiceName: "web"}}}}
		recon := &fakeReconciler{}
		d := newTestDaemon(client, det, recon)

		err := d.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, recon.calls)
	})

	t.Run("skips reconcile when nothing changed", func(t *testing.T) {
		t.Parallel()
		client := &fakeClient{}
		det := &fakeDetector{}
		recon := &fakeReconciler{}
		d := newTestDaemon(client, det, recon)

		err := d.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, recon.calls)
	})

	t.Run("wraps discovery errors", func(t *testing.T) {
		t.Parallel()
		client := &fakeClient{err: errors.New("boom")}
		det := &fakeDetector{}
		recon := &fakeReconciler{}
		d := newTestDaemon(client, det, recon)

		err := d.RunOnce(context.Background())
		assert.ErrorContains(t, err, "discovery failed")
	})

	t.Run("wraps reconciliation errors", func(t *testing.T) {
		t.Parallel()
		client := &fakeClient{instances: []discovery.Instance{{InstanceID: "i-1", PrivateIP: "10.0.0.1"}}}
		det := &fakeDetector{changed: []*discovery.Service{{}}}
		recon := &fakeReconciler{err: errors.New("conflict")}
		d := newTestDaemon(client, det, recon)

		err := d.RunOnce(context.Background())
		assert.ErrorContains(t, err, "reconciliation failed")
	})

	t.Run("consumes a pending reload before discovering", func(t *testing.T) {
		t.Parallel()
		client := &fakeClient{}
		det := &fakeDetector{}
		recon := &fakeReconciler{}
		d := newTestDaemon(client, det, recon)
		d.TriggerReload()

		err := d.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, det.resets)
	})
}

func TestDaemonCalculateSleep(t *testing.T) {
	t.Parallel()

	t.Run("uses the configured interval with no failures", func(t *testing.T) {
		t.Parallel()
		d := &Daemon{polling: config.PollingConfig{IntervalSeconds: 30, JitterSeconds: 0}}
		sleep := d.calculateSleep(0)
		assert.Equal(t, 30*time.Second, sleep)
	})

	t.Run("subtracts elapsed time", func(t *testing.T) {
		t.Parallel()
		d := &Daemon{polling: config.PollingConfig{IntervalSeconds: 30, JitterSeconds: 0}}
		sleep := d.calculateSleep(10 * time.Second)
		assert.Equal(t, 20*time.Second, sleep)
	})

	t.Run("never goes negative when elapsed exceeds the interval", func(t *testing.T) {
		t.Parallel()
		d := &Daemon{polling: config.PollingConfig{IntervalSeconds: 30, JitterSeconds: 0}}
		sleep := d.calculateSleep(60 * time.Second)
		assert.Zero(t, sleep)
	})

	t.Run("grows exponentially with consecutive failures, capped at max", func(t *testing.T) {
		t.Parallel()
		d := &Daemon{
			polling:             config.PollingConfig{IntervalSeconds: 30, JitterSeconds: 0, BackoffBaseSeconds: 5, MaxBackoffSeconds: 20},
			consecutiveFailures: 1,
		}
		assert.Equal(t, 5*time.Second, d.calculateSleep(0))

		d.consecutiveFailures = 2
		assert.Equal(t, 10*time.Second, d.calculateSleep(0))

		d.consecutiveFailures = 10
		assert.Equal(t, 20*time.Second, d.calculateSleep(0), "backoff caps at max_backoff_seconds")
	})
}

func TestDaemonInterruptibleSleep(t *testing.T) {
	t.Parallel()

	t.Run("returns true after the full duration elapses", func(t *testing.T) {
		t.Parallel()
		d := &Daemon{logger: logr.Discard(), detector: &fakeDetector{}, reload: make(chan struct{}, 1)}
		completed := d.interruptibleSleep(context.Background(), 10*time.Millisecond)
		assert.True(t, completed)
	})

	t.Run("returns false immediately when context is already cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d := &Daemon{logger: logr.Discard(), detector: &fakeDetector{}, reload: make(chan struct{}, 1)}
		completed := d.interruptibleSleep(ctx, time.Second)
		assert.False(t, completed)
	})

	t.Run("resets the detector on a pending reload without ending the sleep", func(t *testing.T) {
		t.Parallel()
		det := &fakeDetector{}
		d := &Daemon{logger: logr.Discard(), detector: det, reload: make(chan struct{}, 1)}
		d.TriggerReload()

		completed := d.interruptibleSleep(context.Background(), 10*time.Millisecond)
		assert.True(t, completed)
		assert.Equal(t, 1, det.resets)
	})
}

func TestDaemonRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	det := &fakeDetector{}
	recon := &fakeReconciler{}
	d := newTestDaemon(client, det, recon)
	d.polling = config.PollingConfig{IntervalSeconds: 0, JitterSeconds: 0}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	assert.GreaterOrEqual(t, client.calls, 1)
}
