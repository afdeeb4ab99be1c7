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

// Package discovery holds the cloud-agnostic instance/service model and the
// provider-specific clients that populate it.
package discovery

import "context"

// Client discovers running instances tagged for HAProxy service discovery
// from a single cloud provider.
type Client interface {
	DiscoverAll(ctx context.Context) ([]Instance, error)
}
