package model

import (
	"time"

	"github.com/lib/pq"
)

type NotificationType string

const (
	NotificationInfo    NotificationType = "INFO"
	NotificationSuccess NotificationType = "SUCCESS"
	NotificationWarning NotificationType = "WARNING"
)

type NotificationPriority string

const (
	PriorityNormal NotificationPriority = "NORMAL"
	PriorityHigh   NotificationPriority = "HIGH"
	PriorityUrgent NotificationPriority = "URGENT"
)

type Notification struct {
	ID        string               `db:"id" json:"id"`
	UserID    string               `db:"user_id" json:"userId"`
	Type      NotificationType     `db:"type" json:"type"`
	Priority  NotificationPriority `db:"priority" json:"priority"`
	Title     string               `db:"title" json:"title"`
	Body      string               `db:"body" json:"body"`
	ActionURL *string              `db:"action_url" json:"actionUrl,omitempty"`
	Channels  pq.StringArray       `db:"channels" json:"channels"`
	Read      bool                 `db:"read" json:"read"`
	CreatedAt time.Time            `db:"created_at" json:"createdAt"`
}

type CreateNotificationParams struct {
	UserID    string
	Type      NotificationType
	Priority  NotificationPriority
	Title     string
	Body      string
	ActionURL *string
	Channels  []string
}
