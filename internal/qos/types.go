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

// Package qos measures network latency from this process to a set of
// candidate game server regions and ranks them, so that a matchmaking client
// can attach per-region ping values to its tickets.
//
// The flow of one measurement:
//   - a RegionLister returns the candidate regions (cached after the first
//     successful call),
//   - a bounded pool of workers walks the regions round-robin, sending one
//     UDP probe per region per pass to that region's echo service,
//   - one Aggregator per region collects the latency samples and stops
//     probing a region once it times out too many times,
//   - the per-region summaries are sorted by latency and returned, and
//   - optionally, the result is reported to a telemetry sink in the
//     background.
package qos

import (
	"context"
	"encoding/json"
	"math"
)

// UnknownLatency is the latency reported for a region that produced no
// usable measurement. It is never recorded as a sample.
const UnknownLatency = math.MaxInt32

// Outcome classifies either a whole measurement or a single region.
type Outcome int

const (
	Success Outcome = iota
	NotLoggedIn
	FailedToRetrieveServerList
	NoResult
	Timeout
)

var outcomeNames = map[Outcome]string{
	Success:                    "Success",
	NotLoggedIn:                "NotLoggedIn",
	FailedToRetrieveServerList: "FailedToRetrieveServerList",
	NoResult:                   "NoResult",
	Timeout:                    "Timeout",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "Unknown"
}

// MarshalJSON writes the outcome by name.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// RegionCandidate is one region returned by the region directory. Address is
// a host:port pair for the region's UDP echo service.
type RegionCandidate struct {
	Region  string `json:"region"`
	Address string `json:"address"`
}

// RegionResult is the summary of all probes sent to one region.
type RegionResult struct {
	Region    string  `json:"region"`
	LatencyMs int     `json:"latency_ms"`
	Samples   []int   `json:"samples"`
	Timeouts  int     `json:"timeouts"`
	Outcome   Outcome `json:"outcome"`
}

// Result is returned by Scheduler.GetResult. Regions is sorted ascending by
// latency, with regions of unknown latency last.
type Result struct {
	Outcome      Outcome        `json:"outcome"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Regions      []RegionResult `json:"regions"`
}

// Best returns the lowest latency region that measured successfully.
func (r *Result) Best() (RegionResult, bool) {
	for _, region := range r.Regions {
		if region.Outcome == Success {
			return region, true
		}
	}
	return RegionResult{}, false
}

// Session is the caller's authentication state. Measurements are only made on
// behalf of a logged in player.
type Session interface {
	IsLoggedIn() bool
	EntityToken() string
}

// RegionLister returns the candidate regions to probe.
type RegionLister interface {
	ListCandidateRegions(ctx context.Context) ([]RegionCandidate, error)
}

// Prober measures the round trip time to a single region's echo service.
// Any returned error is counted as a timeout for that probe.
type Prober interface {
	Probe(ctx context.Context, address string, timeoutMs int) (latencyMs int, err error)
}

// EventWriter is the telemetry sink measurement results are reported to.
type EventWriter interface {
	WriteEvent(ctx context.Context, eventName string, namespace string, payload map[string]interface{}) error
}
