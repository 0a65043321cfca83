package model

import (
	"encoding/json"
	"time"
)

type AuditEntry struct {
	ID         string           `db:"id" json:"id"`
	UserID     string           `db:"user_id" json:"userId"`
	Action     string           `db:"action" json:"action"`
	EntityType string           `db:"entity_type" json:"entityType"`
	EntityID   string           `db:"entity_id" json:"entityId"`
	OldValues  *json.RawMessage `db:"old_values" json:"oldValues,omitempty"`
	NewValues  *json.RawMessage `db:"new_values" json:"newValues,omitempty"`
	IPAddress  *string          `db:"ip_address" json:"ipAddress,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"createdAt"`
}

type CreateAuditEntryParams struct {
	UserID     string
	Action     string
	EntityType string
	EntityID   string
	OldValues  any
	NewValues  any
}
