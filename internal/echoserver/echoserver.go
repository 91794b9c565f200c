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

// Package echoserver is a minimal stand-in for the UDP echo service that runs
// in every game server region. It answers each probe request with the echo
// marker and the request's timestamp bytes, which is all the prober needs to
// measure a round trip. Use it for local development and tests.
package echoserver

import (
	"context"
	"encoding/binary"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"open-match.dev/open-match-ecosystem/qos/internal/qos"
)

type Server struct {
	// Delay is added before every reply to simulate distance.
	Delay time.Duration
	// Order must match the prober's timestamp byte order. Nil is little
	// endian.
	Order binary.ByteOrder

	conn   net.PacketConn
	logger *logrus.Entry
}

// Listen binds a UDP socket at addr, e.g. ":3075" or "127.0.0.1:0".
func Listen(addr string, log *logrus.Logger) (*Server, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening for probes on %v", addr)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		conn: conn,
		logger: log.WithFields(logrus.Fields{
			"app":       "qos",
			"component": "echo_server",
			"addr":      conn.LocalAddr().String(),
		}),
	}, nil
}

func (s *Server) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Serve answers probes until ctx is cancelled or the server is closed.
func (s *Server) Serve(ctx context.Context) error {
	order := s.Order
	if order == nil {
		order = binary.LittleEndian
	}
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	s.logger.Info("echo server accepting probes")
	buf := make([]byte, 512)
	for {
		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "reading probe")
		}
		if !qos.IsRequest(buf[:n]) {
			s.logger.Tracef("ignoring %v byte datagram from %v", n, from)
			continue
		}
		ts := int64(order.Uint64(buf[2:qos.DatagramLen]))
		reply := qos.EncodeResponse(order, ts)

		go func(to net.Addr) {
			if s.Delay > 0 {
				time.Sleep(s.Delay)
			}
			if _, err := s.conn.WriteTo(reply, to); err != nil {
				s.logger.Debugf("failed to answer probe from %v: %v", to, err)
			}
		}(from)
	}
}

func (s *Server) Close() error {
	return s.conn.Close()
}
