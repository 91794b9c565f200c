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
//
// In this game client mocking module, the 'game client' attaches its latest
// QoS measurement to an Open Match protobuf `ticket` message directly. A real
// game client would send its pings in whatever format its backend expects
// and the matchmaker queue would build the ticket.

package gameclient

import (
	"context"
	"strconv"
	"time"

	pb "github.com/googleforgames/open-match2/v2/pkg/pb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"open-match.dev/open-match-ecosystem/qos/internal/extensions"
	"open-match.dev/open-match-ecosystem/qos/internal/qos"
)

// WithMeasuredPings generates a matchmaking request carrying the latency to
// every region that was measured successfully, as "ping.<region>" DoubleArgs
// in milliseconds. The best region and the overall outcome go in the ticket
// extensions.
func WithMeasuredPings(ctx context.Context, result qos.Result) *pb.Ticket {
	crTime := time.Now()
	ticket := &pb.Ticket{
		Attributes: &pb.Ticket_FilterableData{
			Tags:         []string{strconv.FormatInt(crTime.UnixNano(), 10)},
			DoubleArgs:   map[string]float64{},
			CreationTime: timestamppb.New(crTime),
		},
		Extensions: extensions.AnypbString(extensions.OutcomeKey, result.Outcome.String()),
	}

	for _, region := range result.Regions {
		if region.Outcome != qos.Success {
			continue
		}
		ticket.Attributes.DoubleArgs[extensions.PingArgPrefix+region.Region] = float64(region.LatencyMs)
	}

	if best, ok := result.Best(); ok {
		ticket.Extensions = extensions.Combine(ticket.Extensions, extensions.AnypbString(extensions.BestRegionKey, best.Region))
		ticket.Extensions = extensions.Combine(ticket.Extensions, extensions.AnypbIntMap(map[string]int32{
			extensions.BestRegionLatencyKey: int32(best.LatencyMs),
		}))
	}
	return ticket
}
