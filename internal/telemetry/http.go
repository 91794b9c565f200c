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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const writeEventsPath = "/Event/WriteTelemetryEvents"

// TokenProvider supplies the entity token sent with each request.
type TokenProvider interface {
	EntityToken() string
}

// HTTPSender posts events to the game backend's telemetry endpoint. Each
// event is sent once; failures are returned and not retried.
type HTTPSender struct {
	Client  *http.Client
	Addr    string
	Session TokenProvider
}

type writeEventsRequest struct {
	Events []Event `json:"Events"`
}

func (s *HTTPSender) WriteEvent(ctx context.Context, eventName, namespace string, payload map[string]interface{}) error {
	body, err := json.Marshal(writeEventsRequest{Events: []Event{newEvent(eventName, namespace, payload)}})
	if err != nil {
		return errors.Wrap(err, "encoding telemetry request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Addr+writeEventsPath, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building telemetry request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Session != nil {
		req.Header.Set("X-EntityToken", s.Session.EntityToken())
	}

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "sending telemetry event")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telemetry endpoint returned %v: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// Stop is a no-op; the sender holds no resources beyond its http.Client.
func (s *HTTPSender) Stop() {}
