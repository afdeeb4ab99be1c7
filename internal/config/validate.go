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
	"github.com/containeroo/haproxy-cloud-discovery/internal/apperrors"
)

var validGrowthTypes = map[string]bool{"linear": true, "exponential": true}
var validBackendModes = map[string]bool{"http": true, "tcp": true}
var validAPIVersions = map[string]bool{"v2": true, "v3": true}

// validate checks an AppConfig against its invariants: exactly one cloud
// provider, minimum polling interval, minimum slot base, and enumerated
// choices for growth type / backend mode / api version.
func validate(c *AppConfig) error {
	hasAzure := c.UsesAzure()
	hasAWS := c.UsesAWS()

	if hasAzure && hasAWS {
		return apperrors.NewConfigError(
			"both 'azure' and 'aws' sections are configured — only one cloud provider may be active at a time")
	}
	if !hasAzure && !hasAWS {
		return apperrors.NewConfigError(
			"no cloud provider configured: add an 'azure' section (with subscription_id) " +
				"or an 'aws' section (with region)")
	}

	if c.HAProxy.ServerSlots.Base < 10 {
		return apperrors.NewConfigError("haproxy.server_slots.base must be >= 10")
	}
	if !validGrowthTypes[c.HAProxy.ServerSlots.GrowthType] {
		return apperrors.NewConfigError("haproxy.server_slots.growth_type must be 'linear' or 'exponential'")
	}
	if !validBackendModes[c.HAProxy.Backend.Mode] {
		return apperrors.NewConfigError("haproxy.backend.mode must be 'http' or 'tcp'")
	}
	if !validAPIVersions[c.HAProxy.APIVersion] {
		return apperrors.NewConfigError("haproxy.api_version must be 'v2' or 'v3'")
	}
	if c.Polling.IntervalSeconds < 5 {
		return apperrors.NewConfigError("polling.interval_seconds must be >= 5")
	}

	return nil
}
