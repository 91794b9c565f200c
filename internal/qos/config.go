// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package qos

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultTimeoutMs        = 250
	DefaultSamplesPerRegion = 10
	DefaultConcurrency      = 4
	DefaultProbePort        = 3075
	DefaultReportTimeoutMs  = 5000
	DefaultReportEventName  = "qos_result"
	DefaultReportNamespace  = "gaming.qos"
)

// SetConfigDefaults registers the default value of every QOS_* key the
// scheduler reads. Call it before cfg.AutomaticEnv().
func SetConfigDefaults(cfg *viper.Viper) {
	cfg.SetDefault("QOS_TIMEOUT_MS", DefaultTimeoutMs)
	cfg.SetDefault("QOS_SAMPLES_PER_REGION", DefaultSamplesPerRegion)
	cfg.SetDefault("QOS_CONCURRENCY", DefaultConcurrency)
	cfg.SetDefault("QOS_TIMEOUT_THRESHOLD", DefaultTimeoutThreshold)
	cfg.SetDefault("QOS_TRIM_MIN_SAMPLES", DefaultTrimMinSamples)
	cfg.SetDefault("QOS_PROBE_PORT", DefaultProbePort)
	cfg.SetDefault("QOS_PROBE_BYTE_ORDER", "little")

	// Result reporting is best effort and never affects the returned result.
	cfg.SetDefault("QOS_REPORT_RESULTS", true)
	cfg.SetDefault("QOS_REPORT_EVENT_NAME", DefaultReportEventName)
	cfg.SetDefault("QOS_REPORT_NAMESPACE", DefaultReportNamespace)
	cfg.SetDefault("QOS_REPORT_TIMEOUT_MS", DefaultReportTimeoutMs)
}

// settings are the tunables for one measurement.
type settings struct {
	timeoutMs        int
	samplesPerRegion int
	concurrency      int
	timeoutThreshold int
	trimMinSamples   int
	reportResults    bool
	reportEventName  string
	reportNamespace  string
	reportTimeout    time.Duration
}

// settingsFrom reads cfg, falling back to the package defaults for unset or
// non-positive values. A nil cfg yields all defaults.
func settingsFrom(cfg *viper.Viper) settings {
	s := settings{
		timeoutMs:        DefaultTimeoutMs,
		samplesPerRegion: DefaultSamplesPerRegion,
		concurrency:      DefaultConcurrency,
		timeoutThreshold: DefaultTimeoutThreshold,
		trimMinSamples:   DefaultTrimMinSamples,
		reportResults:    true,
		reportEventName:  DefaultReportEventName,
		reportNamespace:  DefaultReportNamespace,
		reportTimeout:    DefaultReportTimeoutMs * time.Millisecond,
	}
	if cfg == nil {
		return s
	}

	positive := func(key string, dst *int) {
		if v := cfg.GetInt(key); v > 0 {
			*dst = v
		}
	}
	positive("QOS_TIMEOUT_MS", &s.timeoutMs)
	positive("QOS_SAMPLES_PER_REGION", &s.samplesPerRegion)
	positive("QOS_CONCURRENCY", &s.concurrency)
	positive("QOS_TIMEOUT_THRESHOLD", &s.timeoutThreshold)
	positive("QOS_TRIM_MIN_SAMPLES", &s.trimMinSamples)

	if cfg.IsSet("QOS_REPORT_RESULTS") {
		s.reportResults = cfg.GetBool("QOS_REPORT_RESULTS")
	}
	if v := cfg.GetString("QOS_REPORT_EVENT_NAME"); v != "" {
		s.reportEventName = v
	}
	if v := cfg.GetString("QOS_REPORT_NAMESPACE"); v != "" {
		s.reportNamespace = v
	}
	if v := cfg.GetInt("QOS_REPORT_TIMEOUT_MS"); v > 0 {
		s.reportTimeout = time.Duration(v) * time.Millisecond
	}
	return s
}
