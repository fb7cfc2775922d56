// Package events publishes domain events after their writes commit. Delivery is
// best-effort: callers log publish failures and carry on.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"

	"github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/platform/config"
)

// Publisher emits domain events to a transport.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
	Close() error
}

// envelope is the wire format shared by every driver.
type envelope struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	RefType    string         `json:"refType"`
	RefID      string         `json:"refId"`
	RefNumber  string         `json:"refNumber,omitempty"`
	ActorID    string         `json:"actorId,omitempty"`
	OwnerIDs   []string       `json:"ownerIds,omitempty"`
	Status     string         `json:"status,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func encode(event domain.Event) (envelope, []byte, error) {
	if strings.TrimSpace(event.Type) == "" {
		return envelope{}, nil, errors.New("events: event type is required")
	}
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	env := envelope{
		ID:         event.ID,
		Type:       event.Type,
		RefType:    event.RefType,
		RefID:      event.RefID,
		RefNumber:  event.RefNumber,
		ActorID:    event.ActorID,
		OwnerIDs:   event.OwnerIDs,
		Status:     event.Status,
		OccurredAt: event.OccurredAt.UTC(),
		Metadata:   event.Metadata,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return envelope{}, nil, fmt.Errorf("events: marshal %s: %w", event.Type, err)
	}
	return env, data, nil
}

// Noop drops every event. Used when the driver is "none".
type Noop struct{}

func (Noop) Publish(context.Context, domain.Event) error { return nil }
func (Noop) Close() error                                { return nil }

// New builds the publisher selected by cfg.Driver.
func New(ctx context.Context, cfg config.EventsConfig, projectID string) (Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return Noop{}, nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("events: pubsub client: %w", err)
		}
		publisher, err := NewPubSubPublisher(client.Topic(cfg.Topic))
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		publisher.client = client
		return publisher, nil
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.Topic)
	default:
		return nil, fmt.Errorf("events: unsupported driver %q", cfg.Driver)
	}
}
