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

// Package directory provides qos.RegionLister implementations: a static list
// read from configuration, and an HTTP client for the game backend's QoS
// server listing endpoint.
package directory

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"

	"open-match.dev/open-match-ecosystem/qos/internal/qos"
)

// Static lists a fixed set of regions.
type Static struct {
	Regions []qos.RegionCandidate
}

func (s *Static) ListCandidateRegions(ctx context.Context) ([]qos.RegionCandidate, error) {
	return append([]qos.RegionCandidate(nil), s.Regions...), nil
}

// ParseRegions parses a QOS_REGIONS value of the form
// "eastus=eastus.qos.example.com,westus=10.1.2.3:3080". Hosts without a port
// get defaultPort.
func ParseRegions(value string, defaultPort int, log *logrus.Logger) ([]qos.RegionCandidate, error) {
	var entries []candidateEntry
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		region, host, found := strings.Cut(item, "=")
		region, host = strings.TrimSpace(region), strings.TrimSpace(host)
		if !found || region == "" || host == "" {
			return nil, errors.Errorf("malformed region entry %q, expected region=host[:port]", item)
		}
		entries = append(entries, candidateEntry{region: region, host: host})
	}
	return candidates(entries, defaultPort, log), nil
}

type candidateEntry struct {
	region string
	host   string
}

// candidates turns directory entries into probe targets. The first entry for
// a region wins; later duplicates are dropped.
func candidates(entries []candidateEntry, defaultPort int, log *logrus.Logger) []qos.RegionCandidate {
	seen := sets.New[string]()
	out := make([]qos.RegionCandidate, 0, len(entries))
	for _, e := range entries {
		if seen.Has(e.region) {
			if log != nil {
				log.WithFields(logrus.Fields{
					"app":       "qos",
					"component": "directory",
					"region":    e.region,
				}).Debug("dropping duplicate region entry")
			}
			continue
		}
		seen.Insert(e.region)
		out = append(out, qos.RegionCandidate{Region: e.region, Address: withPort(e.host, defaultPort)})
	}
	return out
}

// withPort adds defaultPort unless host already carries a port.
func withPort(host string, defaultPort int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(defaultPort))
}
