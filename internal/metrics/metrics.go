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

package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/detectors/gcp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetrics "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

const meterName = "qos.prober"

// Initialize sets up the OpenTelemetry meter for a QoS binary. With
// OTEL_SIDECAR set, metrics go to the collector sidecar over OTLP grpc (the
// exporter reads its endpoint from the standard OTEL_* env vars). Otherwise
// a Prometheus exporter is served at :<OTEL_PROM_PORT>/metrics for local
// development.
//
// The returned function flushes and shuts down the meter provider.
func Initialize(cfg *viper.Viper, log *logrus.Logger, serviceName string) (*otelmetrics.Meter, func(context.Context) error, error) {
	logger := log.WithFields(logrus.Fields{
		"app":            "qos",
		"component":      "metrics",
		"implementation": "otel",
	})

	res, err := resource.New(
		context.Background(),
		// Use the GCP resource detector to detect information about the GCP platform
		resource.WithDetectors(gcp.NewDetector()),
		// Discover and provide attributes from OTEL_RESOURCE_ATTRIBUTES and OTEL_SERVICE_NAME environment variables.
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceNamespaceKey.String("qos"),
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(cfg.GetString("SERVICE_VERSION")),
		),
	)
	if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
		logger.Debug(err) // Non-fatal.
	} else if err != nil {
		return nil, nil, errors.Wrap(err, "creating open telemetry resource")
	}

	var reader metric.Reader
	if cfg.GetBool("OTEL_SIDECAR") {
		exporter, err := otlpmetricgrpc.New(context.Background(), otlpmetricgrpc.WithInsecure())
		if err != nil {
			return nil, nil, errors.Wrap(err, "creating otlp metric exporter")
		}
		reader = metric.NewPeriodicReader(exporter)
		logger.Debug("exporting metrics to the otel collector sidecar")
	} else {
		// This exporter embeds a default OpenTelemetry Reader and
		// implements prometheus.Collector
		exporter, err := prometheus.New()
		if err != nil {
			return nil, nil, errors.Wrap(err, "creating prometheus exporter")
		}
		reader = exporter
		go serveProm(logger, cfg.GetInt("OTEL_PROM_PORT"))
	}

	provider := metric.NewMeterProvider(metric.WithResource(res), metric.WithReader(reader))
	meter := provider.Meter(meterName)
	return &meter, provider.Shutdown, nil
}

func serveProm(logger *logrus.Entry, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%v", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Infof("serving metrics at localhost:%v/metrics", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("error serving metrics: %v", err)
	}
}
