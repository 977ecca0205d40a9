package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/docstore"
	"learnizone-backend/internal/models"
)

type NotificationRepo struct {
	docs
}

func NewNotificationRepo(store docstore.Store) *NotificationRepo {
	return &NotificationRepo{docs{store}}
}

func (r *NotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	n.ID = uuid.NewString()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return r.put(ctx, notificationsCollection, n.ID, n)
}

// ListByUser returns the newest notifications first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	return queryAll[models.Notification](ctx, r.docs, notificationsCollection, docstore.Query{
		Filters: []docstore.Filter{docstore.Where("user_id", docstore.OpEq, userID)},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   limit,
	})
}

func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	found, err := r.query(ctx, notificationsCollection, docstore.Query{
		Filters: []docstore.Filter{
			docstore.Where("user_id", docstore.OpEq, userID),
			docstore.Where("read", docstore.OpEq, false),
		},
	})
	if err != nil {
		return 0, err
	}
	return len(found), nil
}

// LatestOfType returns the newest notification of type t for the user, or
// nil when there is none.
func (r *NotificationRepo) LatestOfType(ctx context.Context, userID string, t models.NotificationType) (*models.Notification, error) {
	found, err := queryAll[models.Notification](ctx, r.docs, notificationsCollection, docstore.Query{
		Filters: []docstore.Filter{
			docstore.Where("user_id", docstore.OpEq, userID),
			docstore.Where("type", docstore.OpEq, string(t)),
		},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   1,
	})
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

func (r *NotificationRepo) owned(ctx context.Context, id, userID string) error {
	var n models.Notification
	if err := r.getInto(ctx, notificationsCollection, id, "Notification not found", &n); err != nil {
		return err
	}
	if n.UserID != userID {
		return &apperr.NotFoundError{Message: "Notification not found"}
	}
	return nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID string) error {
	if err := r.owned(ctx, id, userID); err != nil {
		return err
	}
	return r.merge(ctx, notificationsCollection, id, "Notification not found", docstore.Document{
		"read":    true,
		"read_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (r *NotificationRepo) MarkSent(ctx context.Context, id string) error {
	return r.merge(ctx, notificationsCollection, id, "Notification not found", docstore.Document{"sent": true})
}

func (r *NotificationRepo) Delete(ctx context.Context, id, userID string) error {
	if err := r.owned(ctx, id, userID); err != nil {
		return err
	}
	return r.remove(ctx, notificationsCollection, id)
}
