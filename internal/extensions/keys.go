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

package extensions

// Keys for QoS data carried in the extensions field of Open Match messages.
const (
	// Region id with the lowest measured latency.
	BestRegionKey = "open-match.dev/qos-best-region"
	// Latency to the best region, in milliseconds.
	BestRegionLatencyKey = "open-match.dev/qos-best-region-latency-ms"
	// Overall outcome of the measurement, as its string name.
	OutcomeKey = "open-match.dev/qos-outcome"

	// Prefix of the ticket DoubleArgs key holding the latency to a region,
	// e.g. "ping.eastus".
	PingArgPrefix = "ping."
)
