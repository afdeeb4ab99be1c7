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

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry provides a typed façade for recording the daemon's Prometheus
// metrics.
type Registry struct {
	reg                 prometheus.Registerer
	cycleDuration        prometheus.Histogram
	cycleFailures        prometheus.Counter
	discoveredInstances  prometheus.Gauge
	serversCreated       *prometheus.CounterVec
	serversReplaced      *prometheus.CounterVec
	serversDeleted       *prometheus.CounterVec
	maintenanceServers   *prometheus.CounterVec
	versionConflictRetry prometheus.Counter
}

// NewRegistry creates and registers all daemon metrics with the provided
// Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	cycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "haproxy_discovery_cycle_duration_seconds",
		Help:    "Duration of a full discover-filter-group-reconcile polling cycle.",
		Buckets: prometheus.DefBuckets,
	})

	cycleFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "haproxy_discovery_cycle_failures_total",
		Help: "Total number of polling cycles that failed (discovery or reconciliation error).",
	})

	discoveredInstances := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "haproxy_discovery_instances",
		Help: "Number of instances admitted by the most recent discovery cycle.",
	})

	serversCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "haproxy_discovery_servers_created_total",
		Help: "Total number of HAProxy servers created, by backend.",
	}, []string{"backend"})

	serversReplaced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "haproxy_discovery_servers_replaced_total",
		Help: "Total number of HAProxy servers replaced (slot reused), by backend.",
	}, []string{"backend"})

	serversDeleted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "haproxy_discovery_servers_deleted_total",
		Help: "Total number of HAProxy servers deleted (slot count shrank), by backend.",
	}, []string{"backend"})

	maintenanceServers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "haproxy_discovery_servers_maintenance_total",
		Help: "Total number of HAProxy servers set to maintenance mode, by backend.",
	}, []string{"backend"})

	versionConflictRetry := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "haproxy_discovery_version_conflict_retries_total",
		Help: "Total number of Dataplane configuration version conflicts that triggered a reconciliation retry.",
	})

	reg.MustRegister(
		cycleDuration,
		cycleFailures,
		discoveredInstances,
		serversCreated,
		serversReplaced,
		serversDeleted,
		maintenanceServers,
		versionConflictRetry,
	)

	return &Registry{
		reg:                  reg,
		cycleDuration:        cycleDuration,
		cycleFailures:        cycleFailures,
		discoveredInstances:  discoveredInstances,
		serversCreated:       serversCreated,
		serversReplaced:      serversReplaced,
		serversDeleted:       serversDeleted,
		maintenanceServers:   maintenanceServers,
		versionConflictRetry: versionConflictRetry,
	}
}

// ObserveCycleDuration records how long a polling cycle took, in seconds.
func (r *Registry) ObserveCycleDuration(seconds float64) {
	r.cycleDuration.Observe(seconds)
}

// IncCycleFailures increments the counter for failed polling cycles.
func (r *Registry) IncCycleFailures() {
	r.cycleFailures.Inc()
}

// SetDiscoveredInstances sets the gauge tracking the last cycle's admitted
// instance count.
func (r *Registry) SetDiscoveredInstances(count int) {
	r.discoveredInstances.Set(float64(count))
}

// IncServersCreated increments the created-server counter for a backend.
func (r *Registry) IncServersCreated(backend string, n int) {
	r.serversCreated.WithLabelValues(backend).Add(float64(n))
}

// IncServersReplaced increments the replaced-server counter for a backend.
func (r *Registry) IncServersReplaced(backend string, n int) {
	r.serversReplaced.WithLabelValues(backend).Add(float64(n))
}

// IncServersDeleted increments the deleted-server counter for a backend.
func (r *Registry) IncServersDeleted(backend string, n int) {
	r.serversDeleted.WithLabelValues(backend).Add(float64(n))
}

// IncMaintenanceServers increments the maintenance-mode counter for a backend.
func (r *Registry) IncMaintenanceServers(backend string, n int) {
	r.maintenanceServers.WithLabelValues(backend).Add(float64(n))
}

// IncVersionConflictRetries increments the version-conflict-retry counter.
func (r *Registry) IncVersionConflictRetries() {
	r.versionConflictRetry.Inc()
}
