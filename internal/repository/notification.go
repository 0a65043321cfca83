package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mates-hr/screenshare-server-go/internal/model"
)

type NotificationRepository interface {
	Create(ctx context.Context, params model.CreateNotificationParams) (*model.Notification, error)
	FindUnreadByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, id string, userID string) error
	WithTx(tx *sqlx.Tx) NotificationRepository
}

type notificationDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type notificationRepo struct {
	db notificationDB
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) WithTx(tx *sqlx.Tx) NotificationRepository {
	return &notificationRepo{db: tx}
}

func (r *notificationRepo) Create(ctx context.Context, params model.CreateNotificationParams) (*model.Notification, error) {
	var notification model.Notification
	err := r.db.GetContext(ctx, &notification, `
		INSERT INTO notifications (user_id, type, priority, title, body, action_url, channels)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, params.UserID, params.Type, params.Priority, params.Title, params.Body,
		params.ActionURL, pq.Array(params.Channels))
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *notificationRepo) FindUnreadByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	var notifications []model.Notification
	err := r.db.SelectContext(ctx, &notifications, `
		SELECT * FROM notifications
		WHERE user_id = $1 AND read = FALSE
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, id string, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	return err
}
