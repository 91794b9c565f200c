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
	"sort"
	"sync"
)

const (
	DefaultTimeoutThreshold = 3
	DefaultTrimMinSamples   = 4
)

// Aggregator accumulates the probe results for one region during a single
// measurement. Any worker may probe any region, so every method takes the
// lock.
type Aggregator struct {
	mu sync.Mutex

	region           string
	latencies        []int
	timeouts         int
	timeoutThreshold int
	trimMinSamples   int
}

// NewAggregator makes an aggregator for region. Non-positive limits use the
// defaults.
func NewAggregator(region string, timeoutThreshold, trimMinSamples int) *Aggregator {
	if timeoutThreshold <= 0 {
		timeoutThreshold = DefaultTimeoutThreshold
	}
	if trimMinSamples <= 0 {
		trimMinSamples = DefaultTrimMinSamples
	}
	return &Aggregator{
		region:           region,
		timeoutThreshold: timeoutThreshold,
		trimMinSamples:   trimMinSamples,
	}
}

// Record adds one latency sample. Values outside [0, UnknownLatency) are not
// measurements and count as a timeout instead.
func (a *Aggregator) Record(latencyMs int) {
	if latencyMs < 0 || latencyMs >= UnknownLatency {
		a.RecordTimeout()
		return
	}
	a.mu.Lock()
	a.latencies = append(a.latencies, latencyMs)
	a.mu.Unlock()
}

// RecordTimeout counts one probe that got no valid response.
func (a *Aggregator) RecordTimeout() {
	a.mu.Lock()
	a.timeouts++
	a.mu.Unlock()
}

// AtTimeoutThreshold reports whether the region has timed out often enough
// that it should not be probed again. Once true it stays true.
func (a *Aggregator) AtTimeoutThreshold() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timeouts >= a.timeoutThreshold
}

// Summarize computes the region's result from everything recorded so far.
// With at least trimMinSamples samples, exactly one lowest and one highest
// sample are discarded before averaging.
func (a *Aggregator) Summarize() RegionResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	samples := make([]int, len(a.latencies))
	copy(samples, a.latencies)

	result := RegionResult{
		Region:    a.region,
		LatencyMs: UnknownLatency,
		Samples:   samples,
		Timeouts:  a.timeouts,
	}

	switch {
	case a.timeouts >= a.timeoutThreshold:
		result.Outcome = Timeout
	case len(samples) == 0:
		result.Outcome = NoResult
	default:
		result.Outcome = Success
		result.LatencyMs = average(samples, len(samples) >= a.trimMinSamples)
	}
	return result
}

func average(samples []int, trim bool) int {
	values := samples
	if trim && len(samples) > 2 {
		values = make([]int, len(samples))
		copy(values, samples)
		sort.Ints(values)
		values = values[1 : len(values)-1]
	}

	var sum int64
	for _, v := range values {
		sum += int64(v)
	}
	return int(sum / int64(len(values)))
}
