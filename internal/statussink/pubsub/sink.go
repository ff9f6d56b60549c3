// Package pubsub publishes completed StatusDatum records to a Google
// Cloud Pub/Sub topic as pipeline-completion notifications.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/politefetch/politefetch/internal/fetchmodel"
)

// Sink publishes one message per StatusDatum.
type Sink struct {
	topic *pubsub.Topic
}

// New builds a Sink publishing to the named topic in projectID.
func New(ctx context.Context, projectID, topicName string) (*Sink, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("new pubsub client: %w", err)
	}
	return &Sink{topic: client.Topic(topicName)}, nil
}

// PutStatus implements fetchermanager.StatusSink.
func (s *Sink) PutStatus(ctx context.Context, datum fetchmodel.StatusDatum) error {
	data, err := json.Marshal(datum)
	if err != nil {
		return fmt.Errorf("marshal status datum: %w", err)
	}
	result := s.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish status datum: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying topic.
func (s *Sink) Close() error {
	s.topic.Stop()
	return nil
}
