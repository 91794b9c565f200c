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

// Package telemetry delivers QoS result events to an analytics sink. The
// scheduler only needs WriteEvent; Stop releases whatever the sink holds
// once the process is done reporting.
package telemetry

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Sender defines the interface for sending telemetry events.
type Sender interface {
	WriteEvent(ctx context.Context, eventName, namespace string, payload map[string]interface{}) error
	Stop() // Tells the sender that your code is permanently done sending events.
}

// Event is one telemetry record.
type Event struct {
	Name      string
	Namespace string
	Payload   map[string]interface{}
	Timestamp time.Time
}

// document is the wire form shared by every networked sender.
func (ev Event) document() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"EventName":      ev.Name,
		"EventNamespace": ev.Namespace,
		"Timestamp":      ev.Timestamp.UTC().Format(time.RFC3339Nano),
		"Payload":        ev.Payload,
	})
}

// MarshalJSON encodes the event document with protojson.
func (ev Event) MarshalJSON() ([]byte, error) {
	doc, err := ev.document()
	if err != nil {
		return nil, errors.Wrap(err, "building telemetry document")
	}
	return protojson.Marshal(doc)
}

func newEvent(eventName, namespace string, payload map[string]interface{}) Event {
	return Event{
		Name:      eventName,
		Namespace: namespace,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
