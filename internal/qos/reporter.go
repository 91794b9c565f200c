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
	"context"

	"github.com/sirupsen/logrus"
)

// EventPayload converts a result into the telemetry event body. Only plain
// JSON-compatible types are used so any sink can encode it.
func EventPayload(result Result, measurementID string, regionSetHash string) map[string]interface{} {
	regions := make([]interface{}, 0, len(result.Regions))
	for _, r := range result.Regions {
		regions = append(regions, map[string]interface{}{
			"region":     r.Region,
			"latency_ms": r.LatencyMs,
			"timeouts":   r.Timeouts,
			"samples":    len(r.Samples),
			"outcome":    r.Outcome.String(),
		})
	}
	payload := map[string]interface{}{
		"measurement_id":  measurementID,
		"region_set_hash": regionSetHash,
		"outcome":         result.Outcome.String(),
		"regions":         regions,
	}
	if result.ErrorMessage != "" {
		payload["error_message"] = result.ErrorMessage
	}
	return payload
}

// report sends the result to the telemetry sink in the background. The
// caller never waits on it, and nothing that happens in it, including a
// panic inside the sink, reaches the caller.
func (s *Scheduler) report(cfg settings, logger *logrus.Entry, result Result, measurementID string, regionSetHash string) {
	if !cfg.reportResults || s.Reporter == nil {
		return
	}
	payload := EventPayload(result, measurementID, regionSetHash)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.reportTimeout)
		defer cancel()

		rLogger := logger.WithFields(logrus.Fields{
			"operation":  "report_result",
			"event_name": cfg.reportEventName,
			"namespace":  cfg.reportNamespace,
		})
		defer func() {
			if r := recover(); r != nil {
				otelReportFailures.Add(ctx, 1)
				rLogger.Debugf("telemetry sink panicked, discarding report: %v", r)
			}
		}()

		if err := s.Reporter.WriteEvent(ctx, cfg.reportEventName, cfg.reportNamespace, payload); err != nil {
			otelReportFailures.Add(ctx, 1)
			rLogger.Debugf("failed to report QoS result, discarding: %v", err)
			return
		}
		rLogger.Trace("QoS result reported")
	}()
}
