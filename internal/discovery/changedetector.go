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

package discovery

import (
	"time"

	"github.com/go-logr/logr"
)

// serviceState is a snapshot of a service's instances at a point in time,
// compared by value across polling cycles.
type serviceState struct {
	instanceIDs map[string]struct{}
	count       int
	createdAt   map[time.Time]struct{}
}

func snapshot(s *Service) serviceState {
	ids := make(map[string]struct{}, len(s.Instances))
	created := make(map[time.Time]struct{}, len(s.Instances))
	for _, inst := range s.Instances {
		ids[inst.InstanceID] = struct{}{}
		created[inst.CreatedAt] = struct{}{}
	}
	return serviceState{instanceIDs: ids, count: s.ActiveCount(), createdAt: created}
}

func sameSet[T comparable](a, b map[T]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// ChangeDetector is a single-writer, process-local diff engine: it compares
// each polling cycle's discovered services against the previous cycle and
// reports which services are new or changed, and which disappeared. It is
// not safe for concurrent use, but the daemon only ever calls it
// sequentially from one cycle to the next, so no locking is needed.
type ChangeDetector struct {
	previous map[BackendKey]serviceState
	logger   logr.Logger
}

// NewChangeDetector returns a ChangeDetector with empty prior state, so the
// first cycle it sees is reported entirely as "changed".
func NewChangeDetector(logger logr.Logger) *ChangeDetector {
	return &ChangeDetector{previous: map[BackendKey]serviceState{}, logger: logger}
}

// Reset clears all stored state, e.g. in response to SIGHUP. The next
// Detect call will report every current service as changed.
func (d *ChangeDetector) Reset() {
	d.logger.Info("change detector state reset, next cycle will reconcile everything")
	d.previous = map[BackendKey]serviceState{}
}

// Detect compares the current cycle's grouped services against the
// previous cycle and returns the services that are new or changed, and the
// keys of services that vanished entirely. Internal state is replaced with
// a snapshot of current before returning.
func (d *ChangeDetector) Detect(current map[BackendKey]*Service) (changed []*Service, removed []BackendKey) {
	for key := range d.previous {
		if _, ok := current[key]; !ok {
			d.logger.Info("service removed", "service", key.String())
			removed = append(removed, key)
		}
	}

	next := make(map[BackendKey]serviceState, len(current))
	for key, svc := range current {
		curr := snapshot(svc)
		next[key] = curr

		prev, known := d.previous[key]
		if !known {
			d.logger.Info("new service discovered", "service", key.String(), "instances", curr.count)
			changed = append(changed, svc)
			continue
		}
		if hasChanged(prev, curr) {
			changed = append(changed, svc)
		}
	}

	d.logger.Info("change detection complete",
		"changed", len(changed), "removed", len(removed), "total", len(current))

	d.previous = next
	return changed, removed
}

func hasChanged(prev, curr serviceState) bool {
	if prev.count != curr.count {
		return true
	}
	if !sameSet(prev.instanceIDs, curr.instanceIDs) {
		return true
	}
	if !sameSet(prev.createdAt, curr.createdAt) {
		return true
	}
	return false
}
