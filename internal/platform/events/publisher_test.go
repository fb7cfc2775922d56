package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/segmentio/kafka-go"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/platform/config"
)

var occurred = time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)

func orderCreated() domain.Event {
	return domain.Event{
		ID:         "evt-1",
		Type:       string(domain.NotificationOrderCreated),
		RefType:    "order",
		RefID:      "order-1",
		RefNumber:  "ORD-20250506090000-ABC123",
		ActorID:    "student-1",
		OwnerIDs:   []string{"shop-1"},
		Status:     string(domain.OrderStatusPending),
		OccurredAt: occurred,
	}
}

func TestPubSubPublisherPublishesEnvelope(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "campusnest-test",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "checkout-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	publisher, err := NewPubSubPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}

	if err := publisher.Publish(ctx, orderCreated()); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload envelope
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.ID != "evt-1" || payload.RefID != "order-1" || !payload.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if messages[0].Attributes["type"] != "order.created" || messages[0].Attributes["refId"] != "order-1" {
		t.Fatalf("unexpected attributes %#v", messages[0].Attributes)
	}
}

type stubWriter struct {
	write  func(ctx context.Context, msgs ...kafka.Message) error
	closed bool
}

func (s *stubWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return s.write(ctx, msgs...)
}

func (s *stubWriter) Close() error {
	s.closed = true
	return nil
}

func TestKafkaPublisherKeysByReference(t *testing.T) {
	var got []kafka.Message
	writer := &stubWriter{write: func(_ context.Context, msgs ...kafka.Message) error {
		got = append(got, msgs...)
		return nil
	}}
	publisher := newKafkaPublisher(writer)

	if err := publisher.Publish(context.Background(), orderCreated()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one message, got %d", len(got))
	}
	if string(got[0].Key) != "order:order-1" {
		t.Fatalf("unexpected key %q", got[0].Key)
	}
	if len(got[0].Headers) == 0 || string(got[0].Headers[0].Value) != "order.created" {
		t.Fatalf("expected event type header, got %#v", got[0].Headers)
	}
	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer closed, err=%v", err)
	}
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	publisher := newKafkaPublisher(&stubWriter{write: func(context.Context, ...kafka.Message) error { return boom }})
	if err := publisher.Publish(context.Background(), orderCreated()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}

func TestPublishRejectsUntypedEvent(t *testing.T) {
	publisher := newKafkaPublisher(&stubWriter{write: func(context.Context, ...kafka.Message) error {
		t.Fatal("writer must not be called")
		return nil
	}})
	if err := publisher.Publish(context.Background(), domain.Event{RefID: "x"}); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestNewSelectsDriver(t *testing.T) {
	ctx := context.Background()
	publisher, err := New(ctx, config.EventsConfig{Driver: "none"}, "campusnest-test")
	if err != nil {
		t.Fatalf("none driver: %v", err)
	}
	if _, ok := publisher.(Noop); !ok {
		t.Fatalf("expected Noop, got %T", publisher)
	}

	publisher, err = New(ctx, config.EventsConfig{Driver: "kafka", Topic: "checkout-events", KafkaBrokers: []string{"localhost:9092"}}, "")
	if err != nil {
		t.Fatalf("kafka driver: %v", err)
	}
	if _, ok := publisher.(*KafkaPublisher); !ok {
		t.Fatalf("expected KafkaPublisher, got %T", publisher)
	}
	_ = publisher.Close()

	if _, err := New(ctx, config.EventsConfig{Driver: "sqs"}, ""); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}
