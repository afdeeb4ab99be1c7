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
	"github.com/go-logr/logr"

	"github.com/containeroo/haproxy-cloud-discovery/internal/config"
)

// TagFilter keeps or drops discovered instances based on a tag allowlist
// (AND semantics) and a tag denylist (OR semantics). The denylist is
// evaluated first: a denylist hit always overrides an allowlist match.
type TagFilter struct {
	allowlist map[string]string
	denylist  map[string]string
	logger    logr.Logger
}

// NewTagFilter builds a TagFilter from the tags section of the configuration.
func NewTagFilter(cfg config.TagsConfig, logger logr.Logger) *TagFilter {
	return &TagFilter{
		allowlist: cfg.Allowlist,
		denylist:  cfg.Denylist,
		logger:    logger,
	}
}

// Apply returns the subset of instances that pass the filter, preserving
// order.
func (f *TagFilter) Apply(instances []Instance) []Instance {
	result := make([]Instance, 0, len(instances))
	for _, inst := range instances {
		if f.matches(inst) {
			result = append(result, inst)
		}
	}
	if dropped := len(instances) - len(result); dropped > 0 {
		f.logger.Info("tag filter removed instances", "dropped", dropped, "total", len(instances))
	}
	return result
}

func (f *TagFilter) matches(inst Instance) bool {
	for key, value := range f.denylist {
		if inst.Tags[key] == value {
			f.logger.V(1).Info("instance denied by tag", "instance", inst.Name, "tag", key, "value", value)
			return false
		}
	}
	for key, value := range f.allowlist {
		if inst.Tags[key] != value {
			f.logger.V(1).Info("instance does not match allowlist tag", "instance", inst.Name, "tag", key, "value", value)
			return false
		}
	}
	return true
}
