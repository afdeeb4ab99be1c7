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

package flag

import (
	"fmt"
	"net"
	"sort"

	"github.com/containeroo/tinyflags"
)

const (
	EncoderJSON    string = "json"
	EncoderConsole string = "console"

	DefaultConfigPath string = "config.yaml"
)

// Options holds all configuration options for the application.
type Options struct {
	ConfigPath         string // Path to the daemon's YAML configuration file.
	Once               bool   // Run a single discover-reconcile cycle and exit.
	Validate           bool   // Validate the configuration file and exit without running.
	EnableMetrics      bool   // Serve Prometheus metrics.
	MetricsAddr        string // Address for the metrics server.
	LogEncoder         string // Log format: "json" or "console".
	LogStacktraceLevel string // Stacktrace log level.
	LogDev             bool   // Enable development logging mode.

	fs *tinyflags.FlagSet // parsed flagset (for changed-state queries)
}

// ParseArgs parses CLI flags into Options and handles --help/--version output.
func ParseArgs(args []string, version string) (Options, error) {
	options := Options{}

	tf := tinyflags.NewFlagSet("haproxy-cloud-discovery", tinyflags.ContinueOnError)
	tf.Version(version)
	tf.EnvPrefix("HAPROXY_DISCOVERY")
	tf.HideEnvs()
	tf.Note("Each flag can also be set via environment variable using the HAPROXY_DISCOVERY_ prefix, " +
		"e.g.: --log-encoder=json -> HAPROXY_DISCOVERY_LOG_ENCODER=json")

	tf.StringVar(&options.ConfigPath, "config", DefaultConfigPath, "Path to the daemon configuration file").
		Short("c").
		Value()
	tf.BoolVar(&options.Once, "once", false, "Run a single discovery and reconciliation cycle, then exit").
		Value()
	tf.BoolVar(&options.Validate, "validate", false, "Validate the configuration file and exit without running").
		Value()

	tf.BoolVar(&options.EnableMetrics, "metrics-enabled", true, "Enable or disable the metrics endpoint").
		Strict().
		HideAllowed().
		Value()
	metricsBindAddress := tf.TCPAddr("metrics-bind-address", &net.TCPAddr{IP: nil, Port: 9090}, "Metrics server address").
		Placeholder("ADDR:PORT").
		Value()

	tf.StringVar(&options.LogEncoder, "log-encoder", EncoderJSON, "Log format (json, console)").
		Choices(EncoderJSON, EncoderConsole).
		HideAllowed().
		Value()
	tf.BoolVar(&options.LogDev, "log-devel", false, "Enable development mode logging").Value()
	tf.StringVar(&options.LogStacktraceLevel, "log-stacktrace-level", "error", "Stacktrace log level").
		Choices("info", "error", "panic").
		HideAllowed().
		Value()

	if err := tf.Parse(args); err != nil {
		return Options{}, err
	}

	options.MetricsAddr = (*metricsBindAddress).String()
	options.fs = tf // store the parsed flagset for changed-state queries

	return options, nil
}

// ChangedFlags checks if any of the flags were changed.
func (o Options) ChangedFlags() []string {
	var out []string
	// add adds a flag to the list of changed flags.
	add := func(k, v string) { out = append(out, fmt.Sprintf("%s=%s", k, v)) }

	if o.WasSet("config") {
		add("config", o.ConfigPath)
	}
	if o.WasSet("once") {
		add("once", fmt.Sprintf("%v", o.Once))
	}
	if o.WasSet("validate") {
		add("validate", fmt.Sprintf("%v", o.Validate))
	}
	if o.WasSet("metrics-enabled") {
		add("metrics-enabled", fmt.Sprintf("%v", o.EnableMetrics))
	}
	if o.WasSet("metrics-bind-address") {
		add("metrics-bind-address", o.MetricsAddr)
	}
	if o.WasSet("log-encoder") {
		add("log-encoder", o.LogEncoder)
	}
	if o.WasSet("log-stacktrace-level") {
		add("log-stacktrace-level", o.LogStacktraceLevel)
	}
	if o.WasSet("log-devel") {
		add("log-devel", fmt.Sprintf("%v", o.LogDev))
	}

	sort.Strings(out) // sort for deterministic output
	return out
}

// WasSet reports whether the given flag name was explicitly set by the user.
// Returns false for unknown flags or if not set.
func (o Options) WasSet(name string) bool {
	if o.fs == nil {
		return false
	}
	fl := o.fs.LookupFlag(name)
	return fl != nil && fl.Value.Changed()
}
