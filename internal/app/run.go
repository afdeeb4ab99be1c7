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

// Package app wires together configuration, logging, metrics and the
// polling daemon behind a single entry point shared by the CLI and tests.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/containeroo/tinyflags"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/containeroo/haproxy-cloud-discovery/internal/config"
	"github.com/containeroo/haproxy-cloud-discovery/internal/daemon"
	"github.com/containeroo/haproxy-cloud-discovery/internal/flag"
	"github.com/containeroo/haproxy-cloud-discovery/internal/logging"
	"github.com/containeroo/haproxy-cloud-discovery/internal/metrics"
)

// Run is the main function of the application.
func Run(ctx context.Context, version string, args []string, w io.Writer) error {
	// Parse and validate command-line arguments
	flags, err := flag.ParseArgs(args, version)
	if err != nil {
		if tinyflags.IsHelpRequested(err) || tinyflags.IsVersionRequested(err) {
			fmt.Fprint(w, err.Error()) // nolint:errcheck
			return nil
		}
		return fmt.Errorf("error parsing arguments: %w", err)
	}

	// Configure logging
	logger, err := logging.InitLogging(flags, w)
	if err != nil {
		return fmt.Errorf("error setting up logger: %w", err)
	}

	setupLog := logger.WithName("setup")
	setupLog.Info("initializing haproxy-cloud-discovery", "version", version)

	// Load configuration
	cfg, err := config.LoadFile(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if overrides := flags.ChangedFlags(); len(overrides) > 0 {
		setupLog.Info("flag overrides", "values", strings.Join(overrides, ", "))
	}

	if flags.Validate {
		setupLog.Info("configuration is valid", "path", flags.ConfigPath)
		return nil
	}

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	d, err := daemon.New(ctx, *cfg, logger, reg)
	if err != nil {
		return fmt.Errorf("failed to initialize daemon: %w", err)
	}

	if flags.Once {
		setupLog.Info("running a single discovery cycle")
		return d.RunOnce(ctx)
	}

	runCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	stopReload := watchReload(runCtx, d, setupLog)
	defer stopReload()

	if flags.EnableMetrics {
		metricsServer := startMetricsServer(flags.MetricsAddr, setupLog)
		defer shutdownMetricsServer(metricsServer, setupLog)
	}

	setupLog.Info("starting daemon", "interval_seconds", cfg.Polling.IntervalSeconds)
	return d.Run(runCtx)
}

// watchReload resets the daemon's change detector on every SIGHUP received
// until ctx is cancelled, returning a function that stops the signal
// forwarding goroutine.
func watchReload(ctx context.Context, d *daemon.Daemon, logger logr.Logger) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				logger.Info("received SIGHUP, resetting change detector")
				d.TriggerReload()
			}
		}
	}()

	return func() { signal.Stop(sigCh) }
}

// startMetricsServer serves the Prometheus registry's metrics over HTTP.
func startMetricsServer(addr string, logger logr.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "metrics server stopped unexpectedly")
		}
	}()

	return srv
}

func shutdownMetricsServer(srv *http.Server, logger logr.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error(err, "metrics server shutdown error")
	}
}
