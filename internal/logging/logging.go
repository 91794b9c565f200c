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

// Package logging builds the structured logger shared by every component in
// a process. The default output is JSON with field names that Google Cloud
// Logging recognizes (timestamp, severity, message), so logs from Cloud Run or
// GKE are parsed correctly without an agent-side mapping.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// NewSharedLogger reads LOGGING_FORMAT, LOGGING_LEVEL and LOG_CALLER from
// the provided config. Unknown levels fall back to info.
func NewSharedLogger(cfg *viper.Viper) *logrus.Logger {
	log := &logrus.Logger{
		Out:          os.Stdout,
		Hooks:        make(logrus.LevelHooks),
		Formatter:    formatter(cfg.GetString("LOGGING_FORMAT")),
		Level:        level(cfg.GetString("LOGGING_LEVEL")),
		ReportCaller: cfg.GetBool("LOG_CALLER"),
		ExitFunc:     os.Exit,
	}
	log.WithFields(logrus.Fields{
		"format": cfg.GetString("LOGGING_FORMAT"),
		"level":  log.Level.String(),
	}).Debug("shared logger initialized")
	return log
}

func formatter(format string) logrus.Formatter {
	if strings.ToLower(format) == "text" {
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		}
	}
	return &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
}

func level(name string) logrus.Level {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
