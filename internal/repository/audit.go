package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mates-hr/screenshare-server-go/internal/model"
)

type AuditLogRepository interface {
	Append(ctx context.Context, params model.CreateAuditEntryParams) (*model.AuditEntry, error)
	FindByEntity(ctx context.Context, entityType, entityID string) ([]model.AuditEntry, error)
	WithTx(tx *sqlx.Tx) AuditLogRepository
}

type auditDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type auditRepo struct {
	db auditDB
}

func NewAuditLogRepository(db *sqlx.DB) AuditLogRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) WithTx(tx *sqlx.Tx) AuditLogRepository {
	return &auditRepo{db: tx}
}

func (r *auditRepo) Append(ctx context.Context, params model.CreateAuditEntryParams) (*model.AuditEntry, error) {
	oldValues, err := marshalValues(params.OldValues)
	if err != nil {
		return nil, fmt.Errorf("marshal old values: %w", err)
	}
	newValues, err := marshalValues(params.NewValues)
	if err != nil {
		return nil, fmt.Errorf("marshal new values: %w", err)
	}

	var entry model.AuditEntry
	err = r.db.GetContext(ctx, &entry, `
		INSERT INTO audit_log (user_id, action, entity_type, entity_id, old_values, new_values)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.UserID, params.Action, params.EntityType, params.EntityID, oldValues, newValues)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *auditRepo) FindByEntity(ctx context.Context, entityType, entityID string) ([]model.AuditEntry, error) {
	var entries []model.AuditEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC
	`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func marshalValues(v any) (*json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(data)
	return &raw, nil
}
