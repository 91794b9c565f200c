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
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Scheduler runs latency measurements against the regions returned by its
// Directory. All collaborators are injected; there is no package level
// session or configuration state. A Scheduler is safe for concurrent use and
// should be shared, since it caches the region listing.
type Scheduler struct {
	Cfg          *viper.Viper
	Log          *logrus.Logger
	Session      Session
	Directory    RegionLister
	Prober       Prober
	Reporter     EventWriter // optional
	OtelMeterPtr *metric.Meter

	regions   regionCache
	setupOnce sync.Once
}

func (s *Scheduler) setup() {
	s.setupOnce.Do(func() {
		if s.Log == nil {
			s.Log = logrus.StandardLogger()
		}
		if s.Prober == nil {
			var order string
			if s.Cfg != nil {
				order = s.Cfg.GetString("QOS_PROBE_BYTE_ORDER")
			}
			s.Prober = &UDPProber{Order: ByteOrder(order)}
		}
		if s.OtelMeterPtr != nil {
			s.Log.WithFields(logrus.Fields{"app": "qos", "component": "scheduler"}).
				Trace("Initializing otel metrics")
			registerMetrics(s.OtelMeterPtr)
		}
	})
}

// GetDefaultResult runs a measurement with the timeout, sample count and
// worker count from the scheduler's config.
func (s *Scheduler) GetDefaultResult(ctx context.Context) Result {
	cfg := settingsFrom(s.Cfg)
	return s.GetResult(ctx, cfg.timeoutMs, cfg.samplesPerRegion, cfg.concurrency)
}

// GetResult probes every candidate region samplesPerRegion times using
// concurrency workers, each probe waiting at most timeoutMs. Zero or
// negative arguments use the configured value.
//
// It always returns a usable Result: per-probe and per-region failures are
// folded into the region outcomes, and only a logged out session or a failed
// region lookup short-circuits before probing. Cancelling ctx stops probing
// early and returns whatever was measured so far.
func (s *Scheduler) GetResult(ctx context.Context, timeoutMs, samplesPerRegion, concurrency int) Result {
	s.setup()
	cfg := settingsFrom(s.Cfg)
	if timeoutMs <= 0 {
		timeoutMs = cfg.timeoutMs
	}
	if samplesPerRegion <= 0 {
		samplesPerRegion = cfg.samplesPerRegion
	}
	if concurrency <= 0 {
		concurrency = cfg.concurrency
	}

	measurementID := uuid.NewString()
	logger := s.Log.WithFields(logrus.Fields{
		"app":            "qos",
		"component":      "scheduler",
		"operation":      "get_result",
		"measurement_id": measurementID,
	})
	startTime := time.Now()

	if s.Session == nil || !s.Session.IsLoggedIn() {
		logger.Debug("not logged in, skipping QoS measurement")
		return Result{Outcome: NotLoggedIn, ErrorMessage: "player is not logged in"}
	}

	regions, regionSetHash, err := s.regions.get(ctx, s.Directory)
	if err != nil {
		otelDirectoryFailures.Add(ctx, 1)
		logger.Warnf("unable to retrieve QoS server list: %v", err)
		return Result{Outcome: FailedToRetrieveServerList, ErrorMessage: err.Error()}
	}
	logger.Debugf("probing %v regions, %v samples each, %v workers, %vms timeout",
		len(regions), samplesPerRegion, concurrency, timeoutMs)

	aggregators := make([]*Aggregator, len(regions))
	for i, region := range regions {
		aggregators[i] = NewAggregator(region.Region, cfg.timeoutThreshold, cfg.trimMinSamples)
	}

	// Stagger the starting region of each pass so the workers don't all
	// hit the first region at once.
	offsets := make(chan int, samplesPerRegion)
	for i := 0; i < samplesPerRegion; i++ {
		offsets <- i * len(regions) / samplesPerRegion
	}
	close(offsets)

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for offset := range offsets {
				if ctx.Err() != nil {
					return
				}
				s.probePass(ctx, logger, regions, aggregators, offset, timeoutMs)
			}
		}()
	}
	wg.Wait()

	result := summarize(aggregators)
	if err := ctx.Err(); err != nil {
		logger.Debugf("QoS measurement cancelled: %v", err)
		result.ErrorMessage = err.Error()
	}

	otelMeasurementLatency.Record(context.Background(), float64(time.Since(startTime).Milliseconds()))
	if best, ok := result.Best(); ok {
		logger.Debugf("QoS measurement complete, best region %v at %vms", best.Region, best.LatencyMs)
	} else {
		logger.Debugf("QoS measurement complete with outcome %v", result.Outcome)
	}

	s.report(cfg, logger, result, measurementID, regionSetHash)
	return result
}

// probePass sends one probe to every region that hasn't hit its timeout
// threshold, starting at offset and wrapping around. Probes within a pass are
// sequential.
func (s *Scheduler) probePass(ctx context.Context, logger *logrus.Entry, regions []RegionCandidate, aggregators []*Aggregator, offset int, timeoutMs int) {
	for i := range regions {
		idx := (offset + i) % len(regions)
		region, agg := regions[idx], aggregators[idx]
		if agg.AtTimeoutThreshold() {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		regionAttr := metric.WithAttributes(attribute.String("region", region.Region))
		latency, err := s.Prober.Probe(ctx, region.Address, timeoutMs)
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation is not the region's fault.
				return
			}
			agg.RecordTimeout()
			otelProbes.Add(ctx, 1, regionAttr, metric.WithAttributes(attribute.String("outcome", Timeout.String())))
			logger.Tracef("probe to %v (%v) failed: %v", region.Region, region.Address, err)
			if agg.AtTimeoutThreshold() {
				otelRegionsExhausted.Add(ctx, 1, regionAttr)
				logger.Debugf("region %v reached the timeout threshold, no further probes", region.Region)
			}
			continue
		}

		agg.Record(latency)
		otelProbes.Add(ctx, 1, regionAttr, metric.WithAttributes(attribute.String("outcome", Success.String())))
		otelProbeLatency.Record(ctx, int64(latency), regionAttr)
	}
}

// summarize collects every region's summary, sorted ascending by latency
// with ties broken by region name, and derives the overall outcome.
func summarize(aggregators []*Aggregator) Result {
	result := Result{Regions: make([]RegionResult, 0, len(aggregators))}
	anySuccess, allNoResult := false, true
	for _, agg := range aggregators {
		summary := agg.Summarize()
		anySuccess = anySuccess || summary.Outcome == Success
		allNoResult = allNoResult && summary.Outcome == NoResult
		result.Regions = append(result.Regions, summary)
	}

	sort.SliceStable(result.Regions, func(x, y int) bool {
		if result.Regions[x].LatencyMs != result.Regions[y].LatencyMs {
			return result.Regions[x].LatencyMs < result.Regions[y].LatencyMs
		}
		return result.Regions[x].Region < result.Regions[y].Region
	})

	switch {
	case anySuccess:
		result.Outcome = Success
	case allNoResult:
		result.Outcome = NoResult
	default:
		// Every region timed out or produced nothing; the per-region
		// outcomes carry the detail.
		result.Outcome = Success
	}
	return result
}
