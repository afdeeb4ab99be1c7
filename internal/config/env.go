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
	"fmt"
	"os"
	"regexp"
)

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateEnv walks a raw YAML/JSON tree (as decoded into interface{} by
// yaml.Unmarshal) and replaces every ${ENV_VAR} placeholder found in string
// values, recursively through maps and slices. A missing environment
// variable is a config error.
func interpolateEnv(node any) (any, error) {
	switch v := node.(type) {
	case string:
		return interpolateString(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			interpolated, err := interpolateEnv(val)
			if err != nil {
				return nil, err
			}
			out[key] = interpolated
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			interpolated, err := interpolateEnv(val)
			if err != nil {
				return nil, err
			}
			out[i] = interpolated
		}
		return out, nil
	default:
		return node, nil
	}
}

func interpolateString(s string) (string, error) {
	var outerErr error
	result := envPattern.ReplaceAllStringFunc(s, func(match string) string {
		if outerErr != nil {
			return match
		}
		name := envPattern.FindStringSubmatch(match)[1]
		val, ok := os.LookupEnv(name)
		if !ok {
			outerErr = fmt.Errorf("environment variable %q is not set", name)
			return match
		}
		return val
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}
