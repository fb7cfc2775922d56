package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/campusnest/api/internal/domain"
	pfirestore "github.com/campusnest/api/internal/platform/firestore"
	"github.com/campusnest/api/internal/repositories"
)

const notificationCollection = "notifications"

// NotificationRepository stores dashboard notifications.
type NotificationRepository struct {
	base *pfirestore.BaseRepository[notificationDocument]
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)

func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	return &NotificationRepository{
		base: pfirestore.NewBaseRepository[notificationDocument](provider, notificationCollection, nil),
	}, nil
}

func (r *NotificationRepository) Insert(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	n.ID = strings.TrimSpace(n.ID)
	if n.ID == "" {
		return domain.Notification{}, errors.New("notification repository: id is required")
	}
	if strings.TrimSpace(n.RecipientID) == "" {
		return domain.Notification{}, errors.New("notification repository: recipient is required")
	}
	n.CreatedAt = n.CreatedAt.UTC()
	if _, err := r.base.Create(ctx, n.ID, notificationDocument{
		RecipientID: n.RecipientID,
		Kind:        string(n.Kind),
		RefType:     n.RefType,
		RefID:       n.RefID,
		RefNumber:   n.RefNumber,
		Message:     n.Message,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// ListByRecipient returns the newest notifications first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("recipientId", "==", strings.TrimSpace(recipientID)).
			OrderBy("createdAt", firestore.Desc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.Notification{
			ID:          doc.ID,
			RecipientID: doc.Data.RecipientID,
			Kind:        domain.NotificationKind(doc.Data.Kind),
			RefType:     doc.Data.RefType,
			RefID:       doc.Data.RefID,
			RefNumber:   doc.Data.RefNumber,
			Message:     doc.Data.Message,
			Read:        doc.Data.Read,
			CreatedAt:   doc.Data.CreatedAt.UTC(),
		})
	}
	return out, nil
}

type notificationDocument struct {
	RecipientID string    `firestore:"recipientId"`
	Kind        string    `firestore:"kind"`
	RefType     string    `firestore:"refType"`
	RefID       string    `firestore:"refId"`
	RefNumber   string    `firestore:"refNumber,omitempty"`
	Message     string    `firestore:"message"`
	Read        bool      `firestore:"read"`
	CreatedAt   time.Time `firestore:"createdAt"`
}
