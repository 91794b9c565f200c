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
	"encoding/binary"
	"net"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrProbeTimeout     = errors.New("no valid probe response before the timeout")
	ErrProbeUnreachable = errors.New("probe target unreachable")

	// Timestamps are offsets from this instant so they come from the
	// monotonic clock.
	clockBase = time.Now()
)

// UDPProber sends one probe datagram per call to a region's echo service and
// waits for the matching reply.
type UDPProber struct {
	// Order is the byte order of the timestamp on the wire. Nil means little
	// endian.
	Order binary.ByteOrder
	// Dialer is used to resolve and connect to the target. Nil means a zero
	// net.Dialer.
	Dialer *net.Dialer
}

// Probe measures the round trip time to address in whole milliseconds.
// Replies with the wrong marker or a timestamp other than the one sent are
// ignored, and the probe keeps waiting until timeoutMs elapses.
func (p *UDPProber) Probe(ctx context.Context, address string, timeoutMs int) (int, error) {
	order := p.Order
	if order == nil {
		order = binary.LittleEndian
	}
	dialer := p.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	conn, err := dialer.DialContext(probeCtx, "udp", address)
	if err != nil {
		if ctx.Err() != nil {
			return UnknownLatency, ctx.Err()
		}
		return UnknownLatency, errors.Wrapf(ErrProbeUnreachable, "dial %s: %v", address, err)
	}
	defer conn.Close()

	// Unblock the read below as soon as either the probe timeout fires or
	// the caller cancels.
	stop := context.AfterFunc(probeCtx, func() {
		_ = conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	sent := time.Now()
	ts := sent.Sub(clockBase).Nanoseconds()
	if _, err := conn.Write(EncodeRequest(order, ts)); err != nil {
		return UnknownLatency, errors.Wrapf(ErrProbeUnreachable, "write %s: %v", address, err)
	}

	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return UnknownLatency, ctx.Err()
			case probeCtx.Err() != nil:
				return UnknownLatency, ErrProbeTimeout
			default:
				return UnknownLatency, errors.Wrapf(ErrProbeUnreachable, "read %s: %v", address, err)
			}
		}

		echoed, ok := DecodeResponse(order, buf[:n])
		if !ok || echoed != ts {
			// Stale or foreign datagram; keep waiting for ours.
			continue
		}

		latency := time.Since(sent).Milliseconds()
		if latency < 0 || latency >= UnknownLatency {
			return UnknownLatency, ErrProbeTimeout
		}
		return int(latency), nil
	}
}
