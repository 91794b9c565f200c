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

// Package session adapts an entity token source to the qos.Session
// interface. The token is the game backend's entity token; it is sent to the
// region directory and the telemetry collector, and its presence is what
// "logged in" means for a QoS measurement.
package session

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// TokenSession reports logged in whenever Source yields a valid token.
type TokenSession struct {
	Source oauth2.TokenSource
	Log    *logrus.Logger
}

// NewStatic makes a session around a fixed entity token. An empty token is a
// logged out session.
func NewStatic(entityToken string, log *logrus.Logger) *TokenSession {
	return &TokenSession{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: entityToken}),
		Log:    log,
	}
}

func (s *TokenSession) token() *oauth2.Token {
	if s == nil || s.Source == nil {
		return nil
	}
	tok, err := s.Source.Token()
	if err != nil {
		if s.Log != nil {
			s.Log.WithFields(logrus.Fields{
				"app":       "qos",
				"component": "session",
			}).Debugf("entity token unavailable: %v", err)
		}
		return nil
	}
	return tok
}

func (s *TokenSession) IsLoggedIn() bool {
	return s.token().Valid()
}

// EntityToken returns the current token, or "" when logged out.
func (s *TokenSession) EntityToken() string {
	tok := s.token()
	if !tok.Valid() {
		return ""
	}
	return tok.AccessToken
}
