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

package gameclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"open-match.dev/open-match-ecosystem/qos/internal/extensions"
	"open-match.dev/open-match-ecosystem/qos/internal/qos"
)

func TestWithMeasuredPings(t *testing.T) {
	t.Run("successful regions become pings", func(t *testing.T) {
		ticket := WithMeasuredPings(context.Background(), qos.Result{
			Outcome: qos.Success,
			Regions: []qos.RegionResult{
				{Region: "eastus", LatencyMs: 21, Outcome: qos.Success},
				{Region: "westus", LatencyMs: 64, Outcome: qos.Success},
				{Region: "brazil", LatencyMs: qos.UnknownLatency, Timeouts: 3, Outcome: qos.Timeout},
			},
		})

		require.Equal(t, map[string]float64{"ping.eastus": 21, "ping.westus": 64}, ticket.GetAttributes().GetDoubleArgs())
		require.Len(t, ticket.GetAttributes().GetTags(), 1)
		require.NotNil(t, ticket.GetAttributes().GetCreationTime())

		best, err := extensions.String(ticket.GetExtensions(), extensions.BestRegionKey)
		require.NoError(t, err)
		require.Equal(t, "eastus", best)
		latency, err := extensions.Int32(ticket.GetExtensions(), extensions.BestRegionLatencyKey)
		require.NoError(t, err)
		require.Equal(t, 21, latency)
		outcome, err := extensions.String(ticket.GetExtensions(), extensions.OutcomeKey)
		require.NoError(t, err)
		require.Equal(t, "Success", outcome)
	})

	t.Run("no successful region", func(t *testing.T) {
		ticket := WithMeasuredPings(context.Background(), qos.Result{Outcome: qos.NotLoggedIn})
		require.Empty(t, ticket.GetAttributes().GetDoubleArgs())
		_, err := extensions.String(ticket.GetExtensions(), extensions.BestRegionKey)
		require.ErrorIs(t, err, extensions.NoSuchKeyError)
		outcome, err := extensions.String(ticket.GetExtensions(), extensions.OutcomeKey)
		require.NoError(t, err)
		require.Equal(t, "NotLoggedIn", outcome)
	})
}
