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

// Package daemon runs the discover-filter-group-reconcile polling loop that
// keeps HAProxy backend servers in sync with discovered cloud instances.
package daemon

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/containeroo/haproxy-cloud-discovery/internal/config"
	"github.com/containeroo/haproxy-cloud-discovery/internal/discovery"
	"github.com/containeroo/haproxy-cloud-discovery/internal/discovery/awsdiscovery"
	"github.com/containeroo/haproxy-cloud-discovery/internal/discovery/azurediscovery"
	"github.com/containeroo/haproxy-cloud-discovery/internal/haproxy"
	"github.com/containeroo/haproxy-cloud-discovery/internal/metrics"
)

// reconciler is the subset of *haproxy.Reconciler the Daemon drives,
// narrowed so tests can substitute an in-memory fake.
type reconciler interface {
	Reconcile(ctx context.Context, changed []*discovery.Service, removed []discovery.BackendKey) error
}

// changeDetector is the subset of *discovery.ChangeDetector the Daemon
// drives, narrowed so tests can substitute an in-memory fake.
type changeDetector interface {
	Detect(current map[discovery.BackendKey]*discovery.Service) (changed []*discovery.Service, removed []discovery.BackendKey)
	Reset()
}

// Daemon runs the polling loop: discover, filter, group, diff, reconcile,
// sleep. One cycle never overlaps the next; the loop is strictly
// sequential, so ChangeDetector needs no locking.
type Daemon struct {
	client   discovery.Client
	filter   *discovery.TagFilter
	detector changeDetector
	recon    reconciler
	polling  config.PollingConfig
	metrics  *metrics.Registry
	logger   logr.Logger

	consecutiveFailures int
	reload              chan struct{}
}

// New builds a Daemon from the loaded configuration, selecting the Azure or
// AWS discovery client per cfg.UsesAzure/UsesAWS.
func New(ctx context.Context, cfg config.AppConfig, logger logr.Logger, reg *metrics.Registry) (*Daemon, error) {
	client, err := buildClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Daemon{
		client:   client,
		filter:   discovery.NewTagFilter(cfg.Tags, logger),
		detector: discovery.NewChangeDetector(logger),
		recon:    haproxy.NewReconciler(cfg.HAProxy, logger, reg),
		polling:  cfg.Polling,
		metrics:  reg,
		logger:   logger,
		reload:   make(chan struct{}, 1),
	}, nil
}

func buildClient(ctx context.Context, cfg config.AppConfig, logger logr.Logger) (discovery.Client, error) {
	switch {
	case cfg.UsesAzure():
		return azurediscovery.New(cfg.Azure, cfg.Tags, logger)
	case cfg.UsesAWS():
		return awsdiscovery.New(ctx, cfg.AWS, cfg.Tags, logger)
	default:
		return nil, fmt.Errorf("no cloud provider configured: set azure.subscription_id or aws.region")
	}
}

// TriggerReload clears the change detector's prior state so the next cycle
// reconciles every currently discovered service, mirroring a SIGHUP reload.
func (d *Daemon) TriggerReload() {
	select {
	case d.reload <- struct{}{}:
	default:
	}
}

// RunOnce runs a single discover-filter-group-diff-reconcile cycle and
// returns, used by the --once CLI flag.
func (d *Daemon) RunOnce(ctx context.Context) error {
	return d.cycle(ctx)
}

// Run executes the polling loop until ctx is cancelled. Each iteration runs
// one cycle, then sleeps for an interval that grows with consecutive
// failures, checking for cancellation and pending reload requests at
// one-second granularity so shutdown and SIGHUP-driven resets are prompt.
func (d *Daemon) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		if err := d.cycle(ctx); err != nil {
			d.consecutiveFailures++
			d.logger.Error(err, "cycle failed", "consecutive_failures", d.consecutiveFailures)
		} else {
			d.consecutiveFailures = 0
		}
		elapsed := time.Since(start)

		sleepFor := d.calculateSleep(elapsed)
		if !d.interruptibleSleep(ctx, sleepFor) {
			return nil
		}
	}
}

// cycle runs one discover-filter-group-diff-reconcile pass. Every log line
// produced during the cycle, including those emitted deeper in the
// reconciler, carries a cycle_id correlating them to this one pass.
func (d *Daemon) cycle(ctx context.Context) (err error) {
	start := time.Now()
	cycleID := uuid.NewString()
	logger := d.logger.WithValues("cycle_id", cycleID)
	ctx = logr.NewContext(ctx, logger)

	defer func() {
		logger.V(1).Info("cycle finished", "elapsed", time.Since(start))
		if d.metrics == nil {
			return
		}
		d.metrics.ObserveCycleDuration(time.Since(start).Seconds())
		if err != nil {
			d.metrics.IncCycleFailures()
		}
	}()

	select {
	case <-d.reload:
		d.detector.Reset()
	default:
	}

	instances, err := d.client.DiscoverAll(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	admitted := d.filter.Apply(instances)
	if d.metrics != nil {
		d.metrics.SetDiscoveredInstances(len(admitted))
	}

	grouped := discovery.GroupInstances(admitted)
	changed, removed := d.detector.Detect(grouped)

	if len(changed) == 0 && len(removed) == 0 {
		logger.V(1).Info("no changes detected")
		return nil
	}

	if err := d.recon.Reconcile(ctx, changed, removed); err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	return nil
}

// calculateSleep picks the delay before the next cycle: the configured
// interval normally, or exponential backoff based on consecutive failures,
// plus random jitter, minus time already spent this cycle.
func (d *Daemon) calculateSleep(elapsed time.Duration) time.Duration {
	var base float64
	if d.consecutiveFailures > 0 {
		backoff := float64(d.polling.BackoffBaseSeconds) * math.Pow(2, float64(d.consecutiveFailures-1))
		base = math.Min(backoff, float64(d.polling.MaxBackoffSeconds))
	} else {
		base = float64(d.polling.IntervalSeconds)
	}

	jitter := 0.0
	if d.polling.JitterSeconds > 0 {
		jitter = rand.Float64() * float64(d.polling.JitterSeconds) //nolint:gosec // jitter has no security relevance
	}

	sleepSeconds := base + jitter - elapsed.Seconds()
	if sleepSeconds < 0 {
		sleepSeconds = 0
	}
	return time.Duration(sleepSeconds * float64(time.Second))
}

// interruptibleSleep waits for d, checking ctx cancellation and pending
// reload requests in one-second slices so neither is delayed by a long
// sleep. Returns false if ctx was cancelled.
func (d *Daemon) interruptibleSleep(ctx context.Context, dur time.Duration) bool {
	deadline := time.Now().Add(dur)
	tick := time.Second

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		if remaining < tick {
			tick = remaining
		}

		timer := time.NewTimer(tick)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-d.reload:
			timer.Stop()
			d.detector.Reset()
		case <-timer.C:
		}
	}
}
