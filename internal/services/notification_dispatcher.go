package services

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/campusnest/api/internal/domain"
	"github.com/campusnest/api/internal/repositories"
)

// NotificationDispatcherDeps wires the notification store and the event publisher. Either
// may be nil.
type NotificationDispatcherDeps struct {
	Notifications repositories.NotificationRepository
	Publisher     EventPublisher
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(context.Context, string, map[string]any)
}

// NotificationDispatcher writes notification records and publishes events. It never fails the
// caller: every error is logged and dropped.
type NotificationDispatcher struct {
	notifications repositories.NotificationRepository
	publisher     EventPublisher
	now           func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewNotificationDispatcher applies defaults to deps.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) *NotificationDispatcher {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &NotificationDispatcher{
		notifications: deps.Notifications,
		publisher:     deps.Publisher,
		now:           func() time.Time { return clock().UTC() },
		newID:         idGen,
		logger:        logger,
	}
}

// Notice describes one notification to a recipient.
type Notice struct {
	RecipientID string
	Kind        domain.NotificationKind
	RefType     string
	RefID       string
	RefNumber   string
	Message     string
}

// Notify stores one notification per notice. Notices without a recipient are skipped.
func (d *NotificationDispatcher) Notify(ctx context.Context, notices ...Notice) {
	if d == nil || d.notifications == nil {
		return
	}
	for _, notice := range notices {
		if strings.TrimSpace(notice.RecipientID) == "" {
			continue
		}
		record := domain.Notification{
			ID:          d.newID(),
			RecipientID: notice.RecipientID,
			Kind:        notice.Kind,
			RefType:     notice.RefType,
			RefID:       notice.RefID,
			RefNumber:   notice.RefNumber,
			Message:     notice.Message,
			CreatedAt:   d.now(),
		}
		if _, err := d.notifications.Insert(ctx, record); err != nil {
			d.logger(ctx, "notification.write_failed", map[string]any{
				"recipientId": notice.RecipientID,
				"kind":        string(notice.Kind),
				"refId":       notice.RefID,
				"error":       err.Error(),
			})
		}
	}
}

// Publish emits the event. Publish failures are logged.
func (d *NotificationDispatcher) Publish(ctx context.Context, event domain.Event) {
	if d == nil || d.publisher == nil {
		return
	}
	if event.ID == "" {
		event.ID = d.newID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now()
	}
	if err := d.publisher.Publish(ctx, event); err != nil {
		d.logger(ctx, "event.publish_failed", map[string]any{
			"type":  event.Type,
			"refId": event.RefID,
			"error": err.Error(),
		})
	}
}
