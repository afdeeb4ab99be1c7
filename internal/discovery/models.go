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

// Package discovery holds the provider-agnostic data model and the pure
// pipeline stages (filter, group, detect) that sit between a cloud-specific
// DiscoveryClient and the HAProxy reconciler.
package discovery

import (
	"fmt"
	"time"
)

// BackendKey groups instances into one HAProxy backend. Comparable, so it is
// used directly as a map key (the idiomatic Go replacement for the source's
// (service_name, service_port, region) tuple key).
type BackendKey struct {
	ServiceName string
	ServicePort int
	Region      string
}

func (k BackendKey) String() string {
	return fmt.Sprintf("%s:%d@%s", k.ServiceName, k.ServicePort, k.Region)
}

// BackendName renders the HAProxy backend name for this key.
func (k BackendKey) BackendName(prefix, separator string) string {
	return fmt.Sprintf("%s%s%s%s%d%s%s", prefix, separator, k.ServiceName, separator, k.ServicePort, separator, k.Region)
}

// Instance is one VM-like compute instance admitted into the pipeline.
// Immutable once constructed by a DiscoveryClient; downstream stages treat
// every field as fully populated per the optional-field discipline enforced
// at the discovery boundary.
type Instance struct {
	InstanceID       string // stable, globally unique within the provider account
	Name             string
	PrivateIP        string // required, non-empty
	ServiceName      string
	ServicePort      int // positive
	InstancePort     int // 0 means "unset"; EffectivePort falls back to ServicePort
	Region           string
	AvailabilityZone string // "" means unknown/none
	Namespace        string // resource group (Azure) or account ID (AWS)
	Source           string // "vm", "vmss", "ec2", "asg"
	Tags             map[string]string
	PublicIP         string
	CreatedAt        time.Time // zero value means unknown
	PowerState       string
}

// EffectivePort is the port used for the HAProxy server entry: the optional
// per-instance override if present, else the service port.
func (i Instance) EffectivePort() int {
	if i.InstancePort != 0 {
		return i.InstancePort
	}
	return i.ServicePort
}

// Key is the grouping key this instance belongs to.
func (i Instance) Key() BackendKey {
	return BackendKey{ServiceName: i.ServiceName, ServicePort: i.ServicePort, Region: i.Region}
}

// Service is an aggregation of instances sharing a BackendKey. Ephemeral —
// rebuilt from scratch every discovery cycle.
type Service struct {
	Key       BackendKey
	Instances []Instance
}

// ActiveCount is the number of instances currently backing this service.
func (s Service) ActiveCount() int { return len(s.Instances) }

// BackendName renders this service's HAProxy backend name.
func (s Service) BackendName(prefix, separator string) string {
	return s.Key.BackendName(prefix, separator)
}

// GroupInstances partitions instances into services keyed by BackendKey.
// Order of instances within a service is not meaningful here — the
// reconciler imposes its own ordering before assigning slots.
func GroupInstances(instances []Instance) map[BackendKey]*Service {
	services := make(map[BackendKey]*Service)
	for _, inst := range instances {
		key := inst.Key()
		svc, ok := services[key]
		if !ok {
			svc = &Service{Key: key}
			services[key] = svc
		}
		svc.Instances = append(svc.Instances, inst)
	}
	return services
}
