package events

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/campusnest/api/internal/domain"
)

// PubSubPublisher publishes event envelopes to a Pub/Sub topic.
type PubSubPublisher struct {
	topic  *pubsub.Topic
	client *pubsub.Client
}

// NewPubSubPublisher wraps an existing topic. The caller owns the client unless New built it.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("events: pubsub topic is required")
	}
	return &PubSubPublisher{topic: topic}, nil
}

// Publish blocks until the server acknowledges the message.
func (p *PubSubPublisher) Publish(ctx context.Context, event domain.Event) error {
	env, data, err := encode(event)
	if err != nil {
		return err
	}
	attrs := map[string]string{"type": env.Type, "refType": env.RefType}
	if env.RefID != "" {
		attrs["refId"] = env.RefID
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("events: publish %s: %w", env.Type, err)
	}
	return nil
}

// Close flushes pending messages and closes the client when owned.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
