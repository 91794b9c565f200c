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

package telemetry

import (
	"context"
)

// ChannelSender sends events to a Go channel.
type ChannelSender struct {
	eventsChan chan<- Event
}

func NewChannelSender(ch chan<- Event) *ChannelSender {
	return &ChannelSender{eventsChan: ch}
}

// WriteEvent blocks until the event is accepted or ctx is done.
func (s *ChannelSender) WriteEvent(ctx context.Context, eventName, namespace string, payload map[string]interface{}) error {
	select {
	case s.eventsChan <- newEvent(eventName, namespace, payload):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSender) Stop() {
	close(s.eventsChan)
}

// ChannelReceiver receives events from a Go channel.
type ChannelReceiver struct {
	eventsChan <-chan Event
}

func NewChannelReceiver(ch <-chan Event) *ChannelReceiver {
	return &ChannelReceiver{eventsChan: ch}
}

// Receive calls handler for every event in the background until the channel
// is closed.
func (r *ChannelReceiver) Receive(ctx context.Context, handler func(ctx context.Context, ev Event)) {
	go func() {
		for ev := range r.eventsChan {
			handler(ctx, ev)
		}
	}()
}
