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

	"cloud.google.com/go/pubsub"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// PubSubPublisher sends events to a Google Cloud Pub/Sub topic as protojson
// documents.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	log    *logrus.Logger
}

// NewPubSubPublisher connects to an existing topic. It does not create
// topics. A non-empty endpoint points the client at a Pub/Sub emulator,
// without authentication or TLS.
func NewPubSubPublisher(ctx context.Context, projectID, topicID, endpoint string, log *logrus.Logger) (*PubSubPublisher, error) {
	if projectID == "" || topicID == "" {
		return nil, errors.New("pubsub telemetry requires a Google Cloud project ID and an existing topic ID")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts,
			option.WithEndpoint(endpoint),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "initializing pubsub client")
	}

	topic := client.Topic(topicID)
	if exists, err := topic.Exists(ctx); err != nil || !exists {
		client.Close()
		if err == nil {
			err = errors.Errorf("topic %q does not exist", topicID)
		}
		return nil, errors.Wrapf(err, "checking pubsub topic %v", topicID)
	}

	return &PubSubPublisher{client: client, topic: topic, log: log}, nil
}

func (p *PubSubPublisher) WriteEvent(ctx context.Context, eventName, namespace string, payload map[string]interface{}) error {
	data, err := newEvent(eventName, namespace, payload).MarshalJSON()
	if err != nil {
		return err
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"event_name": eventName, "namespace": namespace},
	})

	// Block until the result is returned.
	if _, err := result.Get(ctx); err != nil {
		return errors.Wrap(err, "publishing telemetry event")
	}
	return nil
}

func (p *PubSubPublisher) Stop() {
	p.log.Infof("Cleaning up telemetry pubsub client, stopping topic %s", p.topic.ID())
	p.topic.Stop()
	p.client.Close()
}
