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
	"bytes"
	"encoding/json"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/containeroo/haproxy-cloud-discovery/internal/apperrors"
)

// LoadFile reads a YAML configuration file from disk, interpolates
// ${ENV_VAR} placeholders, decodes it onto the documented defaults, and
// validates the result.
func LoadFile(filePath string) (*AppConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, apperrors.NewConfigError("read configuration file %q: %v", filePath, err)
	}
	return parse(data)
}

// parse interpolates and unmarshals a YAML document into an AppConfig.
func parse(data []byte) (*AppConfig, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.NewConfigError("parse configuration: %v", err)
	}
	if raw == nil {
		return nil, apperrors.NewConfigError("configuration file must be a YAML mapping")
	}

	interpolated, err := interpolateEnv(raw)
	if err != nil {
		return nil, apperrors.NewConfigError("%v", err)
	}

	normalized, err := json.Marshal(interpolated)
	if err != nil {
		return nil, apperrors.NewConfigError("normalize configuration: %v", err)
	}

	cfg := defaults()
	dec := json.NewDecoder(bytes.NewReader(normalized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, apperrors.NewConfigError("decode configuration: %v", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
