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
	"sync"

	"github.com/sirupsen/logrus"
	otelmetrics "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const metricsNamePrefix = "qos."

var (
	otelLogger = logrus.WithFields(logrus.Fields{
		"app":            "qos",
		"component":      "scheduler",
		"implementation": "otel",
	})

	registerOnce sync.Once

	// Metric variable declarations are global, so they can be accessed
	// directly in the application code. They point at a noop meter until
	// registerMetrics is called with a real one.
	otelProbes             otelmetrics.Int64Counter
	otelProbeLatency       otelmetrics.Int64Histogram
	otelRegionsExhausted   otelmetrics.Int64Counter
	otelDirectoryFailures  otelmetrics.Int64Counter
	otelReportFailures     otelmetrics.Int64Counter
	otelMeasurementLatency otelmetrics.Float64Histogram
)

func init() {
	var meter otelmetrics.Meter = noop.NewMeterProvider().Meter("qos")
	createInstruments(&meter)
}

// registerMetrics swaps the instruments over to meterPointer. Only the first
// call has an effect.
func registerMetrics(meterPointer *otelmetrics.Meter) {
	registerOnce.Do(func() {
		createInstruments(meterPointer)
	})
}

//nolint:cyclop // Cyclop linter sees each metric initialization as +1 cyclomatic complexity for some reason.
func createInstruments(meterPointer *otelmetrics.Meter) {
	meter := *meterPointer
	var err error

	otelProbes, err = meter.Int64Counter(
		metricsNamePrefix+"probe.count",
		otelmetrics.WithDescription("Total probes sent, by region and outcome"),
	)
	if err != nil {
		otelLogger.Fatal(err)
	}

	otelProbeLatency, err = meter.Int64Histogram(
		metricsNamePrefix+"probe.latency",
		otelmetrics.WithDescription("Round trip time of successful probes"),
		otelmetrics.WithUnit("ms"),
	)
	if err != nil {
		otelLogger.Fatal(err)
	}

	otelRegionsExhausted, err = meter.Int64Counter(
		metricsNamePrefix+"region.exhausted",
		otelmetrics.WithDescription("Regions that stopped being probed after reaching the timeout threshold"),
	)
	if err != nil {
		otelLogger.Fatal(err)
	}

	otelDirectoryFailures, err = meter.Int64Counter(
		metricsNamePrefix+"directory.failures",
		otelmetrics.WithDescription("Region directory lookups that failed or returned no regions"),
	)
	if err != nil {
		otelLogger.Fatal(err)
	}

	otelReportFailures, err = meter.Int64Counter(
		metricsNamePrefix+"report.failures",
		otelmetrics.WithDescription("Result reports to the telemetry sink that failed"),
	)
	if err != nil {
		otelLogger.Fatal(err)
	}

	otelMeasurementLatency, err = meter.Float64Histogram(
		metricsNamePrefix+"result.duration",
		otelmetrics.WithDescription("Wall clock duration of a complete measurement"),
		otelmetrics.WithUnit("ms"),
	)
	if err != nil {
		otelLogger.Fatal(err)
	}
}
