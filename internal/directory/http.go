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

package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"open-match.dev/open-match-ecosystem/qos/internal/qos"
)

const listQosServersPath = "/MultiplayerServer/ListQosServersForTitle"

// TokenProvider supplies the entity token sent with directory requests.
type TokenProvider interface {
	EntityToken() string
}

// HTTP lists regions by calling the game backend's QoS server listing
// endpoint.
type HTTP struct {
	Client  *http.Client
	Addr    string // e.g. https://titleid.example.com
	Session TokenProvider
	Log     *logrus.Logger
	// Port is used for servers listed without one.
	Port int
	// MaxElapsedTime bounds the retries of a single listing.
	MaxElapsedTime time.Duration
	// InitialInterval is the first retry delay. Zero uses the backoff
	// package default.
	InitialInterval time.Duration
}

type listQosServersResponse struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   struct {
		QosServers []struct {
			Region    string `json:"Region"`
			ServerURL string `json:"ServerUrl"`
		} `json:"QosServers"`
	} `json:"data"`
}

// ListCandidateRegions retries transport errors, 429s and 5xx responses with
// exponential backoff and jitter. Other 4xx responses fail immediately.
func (d *HTTP) ListCandidateRegions(ctx context.Context) ([]qos.RegionCandidate, error) {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	logger := log.WithFields(logrus.Fields{
		"app":       "qos",
		"component": "directory",
		"operation": "list_qos_servers",
	})
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	port := d.Port
	if port <= 0 {
		port = qos.DefaultProbePort
	}
	maxElapsed := d.MaxElapsedTime
	if maxElapsed <= 0 {
		maxElapsed = 5 * time.Second
	}

	opts := []backoff.ExponentialBackOffOpts{backoff.WithMaxElapsedTime(maxElapsed)}
	if d.InitialInterval > 0 {
		opts = append(opts, backoff.WithInitialInterval(d.InitialInterval))
	}

	var parsed listQosServersResponse
	err := backoff.RetryNotify(
		func() error {
			var err error
			parsed, err = d.post(ctx, client)
			return err
		},
		backoff.WithContext(backoff.NewExponentialBackOff(opts...), ctx),
		func(err error, bo time.Duration) {
			logger.Warnf("ListQosServers temporary failure (backoff for %v): %v", bo, err)
		},
	)
	if err != nil {
		return nil, err
	}

	entries := make([]candidateEntry, 0, len(parsed.Data.QosServers))
	for _, server := range parsed.Data.QosServers {
		if server.Region == "" || server.ServerURL == "" {
			logger.Debugf("skipping incomplete QoS server entry %+v", server)
			continue
		}
		entries = append(entries, candidateEntry{region: server.Region, host: server.ServerURL})
	}
	regions := candidates(entries, port, log)
	logger.Debugf("directory listed %v regions", len(regions))
	return regions, nil
}

func (d *HTTP) post(ctx context.Context, client *http.Client) (listQosServersResponse, error) {
	var out listQosServersResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Addr+listQosServersPath, bytes.NewReader([]byte("{}")))
	if err != nil {
		return out, backoff.Permanent(errors.Wrap(err, "building directory request"))
	}
	req.Header.Set("Content-Type", "application/json")
	if d.Session != nil {
		req.Header.Set("X-EntityToken", d.Session.EntityToken())
	}

	resp, err := client.Do(req)
	if err != nil {
		return out, errors.Wrap(err, "calling region directory")
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return out, errors.Wrap(err, "reading region directory response")
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("region directory returned %v: %s", resp.StatusCode, bytes.TrimSpace(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return out, err
		}
		return out, backoff.Permanent(err)
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return out, backoff.Permanent(errors.Wrap(err, "decoding region directory response"))
	}
	return out, nil
}
