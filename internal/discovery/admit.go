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
	"strconv"

	"github.com/go-logr/logr"
)

// TagNames names the tags a discovery client reads to build service
// metadata off of an otherwise cloud-specific raw instance.
type TagNames struct {
	ServiceName  string
	ServicePort  string
	InstancePort string
}

// ServiceIdentity is the service_name/service_port/instance_port triple
// parsed out of an instance's tags. ParseServiceIdentity is shared between
// the Azure and AWS clients, which otherwise have nothing in common beyond
// "read these three tags, same rules either way".
type ServiceIdentity struct {
	ServiceName  string
	ServicePort  int
	InstancePort int // 0 means "use ServicePort"
}

// ParseServiceIdentity extracts the service tag triple from tags. ok is
// false when the instance should not be admitted: the service name or
// service port tag is missing, or the service port does not parse as a
// positive integer. A non-integer instance port tag is tolerated and treated as
// absent, matching the admission-by-omission rule used for optional tags
// across both cloud clients.
func ParseServiceIdentity(tags map[string]string, names TagNames, logger logr.Logger, instanceLabel string) (ServiceIdentity, bool) {
	serviceName := tags[names.ServiceName]
	servicePortRaw := tags[names.ServicePort]
	if serviceName == "" || servicePortRaw == "" {
		return ServiceIdentity{}, false
	}

	servicePort, err := strconv.Atoi(servicePortRaw)
	if err != nil || servicePort <= 0 {
		logger.Info("instance has invalid service port tag, skipping",
			"instance", instanceLabel, "value", servicePortRaw)
		return ServiceIdentity{}, false
	}

	instancePort := 0
	if raw, ok := tags[names.InstancePort]; ok {
		if parsed, err := strconv.Atoi(raw); err == nil {
			instancePort = parsed
		}
	}

	return ServiceIdentity{ServiceName: serviceName, ServicePort: servicePort, InstancePort: instancePort}, true
}

// MergeTags overlays override on top of base, returning a new map. Used to
// apply VMSS instance-level tag overrides on top of scale-set-level tags.
func MergeTags(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
