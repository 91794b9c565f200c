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
	"encoding/binary"
	"strings"
)

// Probe datagram layout:
//
//	request:  [0xFF 0xFF][int64 send timestamp]
//	response: [0x00 0x00][int64 echoed timestamp]
const (
	markerLen    = 2
	timestampLen = 8
	DatagramLen  = markerLen + timestampLen
)

var (
	requestMarker  = [markerLen]byte{0xFF, 0xFF}
	responseMarker = [markerLen]byte{0x00, 0x00}
)

// ByteOrder parses the QOS_PROBE_BYTE_ORDER config value. The deployed echo
// servers copy the timestamp bytes verbatim, so this only has to match
// whatever peers decode our timestamps; anything but "big" is little endian.
func ByteOrder(name string) binary.ByteOrder {
	if strings.ToLower(name) == "big" {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// EncodeRequest builds a probe request datagram.
func EncodeRequest(order binary.ByteOrder, ts int64) []byte {
	return encode(order, requestMarker, ts)
}

// EncodeResponse builds the datagram an echo service sends back for a
// request carrying ts.
func EncodeResponse(order binary.ByteOrder, ts int64) []byte {
	return encode(order, responseMarker, ts)
}

func encode(order binary.ByteOrder, marker [markerLen]byte, ts int64) []byte {
	buf := make([]byte, DatagramLen)
	copy(buf, marker[:])
	order.PutUint64(buf[markerLen:], uint64(ts))
	return buf
}

// IsRequest reports whether buf starts with a well formed probe request.
func IsRequest(buf []byte) bool {
	return len(buf) >= DatagramLen && buf[0] == requestMarker[0] && buf[1] == requestMarker[1]
}

// DecodeResponse returns the echoed timestamp. ok is false for short
// datagrams and datagrams without the response marker.
func DecodeResponse(order binary.ByteOrder, buf []byte) (ts int64, ok bool) {
	if len(buf) < DatagramLen || buf[0] != responseMarker[0] || buf[1] != responseMarker[1] {
		return 0, false
	}
	return int64(order.Uint64(buf[markerLen:DatagramLen])), true
}
