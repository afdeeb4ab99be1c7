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

// Package haproxy reconciles discovered services against the HAProxy
// Dataplane API: backend servers, slot counts, and weights.
package haproxy

import (
	"fmt"
	"math"

	"github.com/containeroo/haproxy-cloud-discovery/internal/config"
)

// SlotAllocator computes how many named server slots a backend should carry
// for a given active instance count, over-provisioning so that small
// membership changes don't require adding or removing slots (which forces
// an HAProxy reload).
type SlotAllocator struct {
	base         int
	growthFactor float64
	exponential  bool
}

// NewSlotAllocator builds a SlotAllocator from the server_slots section of
// the configuration.
func NewSlotAllocator(cfg config.ServerSlotsConfig) *SlotAllocator {
	return &SlotAllocator{
		base:         cfg.Base,
		growthFactor: cfg.GrowthFactor,
		exponential:  cfg.GrowthType == "exponential",
	}
}

// CalculateSlots returns the number of server slots needed for activeCount
// active instances. Below or at the base, it returns the base unchanged.
// Above it, slots grow linearly or exponentially depending on configuration.
func (a *SlotAllocator) CalculateSlots(activeCount int) int {
	if activeCount <= a.base {
		return a.base
	}

	if a.exponential {
		n := math.Ceil(math.Log(float64(activeCount)/float64(a.base)) / math.Log(a.growthFactor))
		slots := int(math.Ceil(float64(a.base) * math.Pow(a.growthFactor, n)))
		return max(slots, activeCount)
	}

	extra := int(math.Ceil(float64(activeCount-a.base) * a.growthFactor))
	return a.base + extra
}

// GenerateServerNames returns the stable slot names srv1..srvN.
func GenerateServerNames(count int) []string {
	names := make([]string, count)
	for i := range names {
		names[i] = fmt.Sprintf("srv%d", i+1)
	}
	return names
}
