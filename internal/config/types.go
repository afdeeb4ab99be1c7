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

// Package config holds the YAML configuration shape, the ${ENV_VAR}
// interpolation pass, and load-time validation for the daemon.
package config

// AzureConfig selects and scopes the Azure discovery client. Present iff the
// daemon is configured for Azure.
type AzureConfig struct {
	SubscriptionID string   `json:"subscription_id"`
	ResourceGroups []string `json:"resource_groups"`
}

// AWSConfig selects and scopes the AWS discovery client. Present iff the
// daemon is configured for AWS; mutually exclusive with AzureConfig.
type AWSConfig struct {
	Region            string `json:"region"`
	AccountID         string `json:"account_id"`
	CredentialProfile string `json:"credential_profile"`
}

// TagsConfig names the tags carrying service metadata and the allow/deny
// filter lists applied after discovery.
type TagsConfig struct {
	ServiceNameTag  string            `json:"service_name_tag"`
	ServicePortTag  string            `json:"service_port_tag"`
	InstancePortTag string            `json:"instance_port_tag"`
	Allowlist       map[string]string `json:"allowlist"`
	Denylist        map[string]string `json:"denylist"`
}

// BackendConfig controls how HAProxy backend names and defaults are built.
type BackendConfig struct {
	NamePrefix    string `json:"name_prefix"`
	NameSeparator string `json:"name_separator"`
	Balance       string `json:"balance"`
	Mode          string `json:"mode"` // "http" or "tcp"
}

// ServerSlotsConfig controls the SlotAllocator's growth behavior.
type ServerSlotsConfig struct {
	Base         int     `json:"base"`
	GrowthFactor float64 `json:"growth_factor"`
	GrowthType   string  `json:"growth_type"` // "linear" or "exponential"
}

// HAProxyConfig describes how to reach and address the Dataplane API.
type HAProxyConfig struct {
	BaseURL            string                    `json:"base_url"`
	APIVersion         string                    `json:"api_version"` // "v2" or "v3"
	Username           string                    `json:"username"`
	Password           string                    `json:"password"`
	TimeoutSeconds     int                       `json:"timeout"`
	VerifySSL          bool                      `json:"verify_ssl"`
	AvailabilityZone   *string                   `json:"availability_zone"`
	AZWeightTag        string                    `json:"az_weight_tag"`
	BackendOptions     map[string]map[string]any `json:"backend_options"`
	Backend            BackendConfig             `json:"backend"`
	ServerSlots        ServerSlotsConfig         `json:"server_slots"`
}

// PollingConfig drives the daemon's sleep/backoff calculation.
type PollingConfig struct {
	IntervalSeconds     int `json:"interval_seconds"`
	JitterSeconds       int `json:"jitter_seconds"`
	MaxBackoffSeconds   int `json:"max_backoff_seconds"`
	BackoffBaseSeconds  int `json:"backoff_base_seconds"`
}

// LoggingConfig selects the log level and output encoding.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "json" or "text"
}

// AppConfig is the root configuration document.
type AppConfig struct {
	Azure   *AzureConfig  `json:"azure"`
	AWS     *AWSConfig    `json:"aws"`
	Tags    TagsConfig    `json:"tags"`
	HAProxy HAProxyConfig `json:"haproxy"`
	Polling PollingConfig `json:"polling"`
	Logging LoggingConfig `json:"logging"`
}

// UsesAzure reports whether the Azure provider is active per the selection
// rule: azure.subscription_id non-empty.
func (c *AppConfig) UsesAzure() bool {
	return c.Azure != nil && c.Azure.SubscriptionID != ""
}

// UsesAWS reports whether the AWS provider is active per the selection
// rule: aws.region non-empty.
func (c *AppConfig) UsesAWS() bool {
	return c.AWS != nil && c.AWS.Region != ""
}

// defaults returns an AppConfig pre-populated with the documented defaults,
// applied before the user's YAML is decoded on top of it.
func defaults() AppConfig {
	return AppConfig{
		Tags: TagsConfig{
			ServiceNameTag:  "HAProxy:Service:Name",
			ServicePortTag:  "HAProxy:Service:Port",
			InstancePortTag: "HAProxy:Instance:Port",
		},
		HAProxy: HAProxyConfig{
			BaseURL:        "http://localhost:5555",
			APIVersion:     "v2",
			Username:       "admin",
			TimeoutSeconds: 10,
			VerifySSL:      true,
			AZWeightTag:    "HAProxy:Instance:AZperc",
			Backend: BackendConfig{
				NamePrefix:    "azure",
				NameSeparator: "-",
				Balance:       "roundrobin",
				Mode:          "http",
			},
			ServerSlots: ServerSlotsConfig{
				Base:         10,
				GrowthFactor: 1.5,
				GrowthType:   "linear",
			},
		},
		Polling: PollingConfig{
			IntervalSeconds:    30,
			JitterSeconds:      5,
			MaxBackoffSeconds:  300,
			BackoffBaseSeconds: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
