package repository

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mates-hr/screenshare-server-go/internal/model"
)

// SessionRepository persists screen share sessions. Creation and transition
// methods are atomic check-and-write units that report whether the row was
// won, so concurrent callers resolve to exactly one winner even across server
// instances.
type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.ScreenShareSession, error)
	// CreateIfIdle inserts a PENDING session unless either party already has
	// a non-terminal one; returns false when the guard fails.
	CreateIfIdle(ctx context.Context, params model.CreateSessionParams) (*model.ScreenShareSession, bool, error)
	MarkResponded(ctx context.Context, id string, accepted bool, note *string, at time.Time) (bool, error)
	MarkActive(ctx context.Context, id string, at time.Time) (bool, error)
	MarkEnded(ctx context.Context, id string, endedBy string, durationSeconds int, at time.Time) (bool, error)
	MarkExpired(ctx context.Context, id string, at time.Time) (bool, error)
	ExpireOverdue(ctx context.Context) ([]model.ScreenShareSession, error)
	FindNonTerminalByUser(ctx context.Context, userID string) ([]model.ScreenShareSession, error)
	FindEndedByUser(ctx context.Context, userID string, from, to *time.Time, limit, offset int) ([]model.ScreenShareSession, error)
	FindByStatus(ctx context.Context, status model.SessionStatus) ([]model.ScreenShareSession, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db  sessionDB
	sql *sqlx.DB // nil when scoped to a caller-owned transaction
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db, sql: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.ScreenShareSession, error) {
	var session model.ScreenShareSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM screen_share_sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

// CreateIfIdle runs the engagement check and the insert in one transaction,
// serialized by advisory xact locks on both user ids. Two racing creations
// touching the same user queue on the lock, so the second one always sees the
// first one's row and loses the guard, on any instance.
func (r *sessionRepo) CreateIfIdle(ctx context.Context, params model.CreateSessionParams) (*model.ScreenShareSession, bool, error) {
	tx, err := r.sql.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	userIDs := []string{params.RequesterID, params.TargetID}
	sort.Strings(userIDs)
	for _, id := range userIDs {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id); err != nil {
			return nil, false, err
		}
	}

	var count int
	err = tx.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM screen_share_sessions
		WHERE status IN ('PENDING', 'ACCEPTED', 'ACTIVE')
		AND (requester_id = ANY($1) OR target_id = ANY($1))
	`, pq.Array(userIDs))
	if err != nil {
		return nil, false, err
	}
	if count > 0 {
		return nil, false, nil
	}

	var session model.ScreenShareSession
	err = tx.GetContext(ctx, &session, `
		INSERT INTO screen_share_sessions (
			id, requester_id, target_id, status, session_token, room_id,
			consent_scope, reason, requested_minutes, expires_at
		)
		VALUES ($1, $2, $3, 'PENDING', $4, $5, $6, $7, $8, $9)
		RETURNING *
	`, params.ID, params.RequesterID, params.TargetID, params.SessionToken,
		params.RoomID, params.ConsentScope, params.Reason, params.RequestedMinutes,
		params.ExpiresAt)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &session, true, nil
}

func (r *sessionRepo) MarkResponded(ctx context.Context, id string, accepted bool, note *string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE screen_share_sessions SET
			status = CASE WHEN $2 THEN 'ACCEPTED' ELSE 'REJECTED' END,
			consent_given_at = CASE WHEN $2 THEN $4 ELSE NULL END,
			consent_note = $3,
			updated_at = $4
		WHERE id = $1 AND status = 'PENDING'
	`, id, accepted, note, at)
	return oneRowAffected(result, err)
}

func (r *sessionRepo) MarkActive(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE screen_share_sessions SET
			status = 'ACTIVE',
			started_at = $2,
			updated_at = $2
		WHERE id = $1 AND status = 'ACCEPTED'
	`, id, at)
	return oneRowAffected(result, err)
}

func (r *sessionRepo) MarkEnded(ctx context.Context, id string, endedBy string, durationSeconds int, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE screen_share_sessions SET
			status = 'ENDED',
			ended_at = $4,
			ended_by = $2,
			duration_seconds = $3,
			updated_at = $4
		WHERE id = $1 AND status = 'ACTIVE'
	`, id, endedBy, durationSeconds, at)
	return oneRowAffected(result, err)
}

func (r *sessionRepo) MarkExpired(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE screen_share_sessions SET
			status = 'EXPIRED',
			updated_at = $2
		WHERE id = $1 AND status = 'PENDING'
	`, id, at)
	return oneRowAffected(result, err)
}

// ExpireOverdue transitions every PENDING session whose consent deadline has
// passed and returns the expired rows. Used by the sweep job to cover expiry
// timers lost to a process restart.
func (r *sessionRepo) ExpireOverdue(ctx context.Context) ([]model.ScreenShareSession, error) {
	var sessions []model.ScreenShareSession
	err := r.db.SelectContext(ctx, &sessions, `
		UPDATE screen_share_sessions SET
			status = 'EXPIRED',
			updated_at = NOW()
		WHERE status = 'PENDING' AND expires_at < NOW()
		RETURNING *
	`)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) FindNonTerminalByUser(ctx context.Context, userID string) ([]model.ScreenShareSession, error) {
	var sessions []model.ScreenShareSession
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM screen_share_sessions
		WHERE status IN ('PENDING', 'ACCEPTED', 'ACTIVE')
		AND (requester_id = $1 OR target_id = $1)
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) FindEndedByUser(ctx context.Context, userID string, from, to *time.Time, limit, offset int) ([]model.ScreenShareSession, error) {
	var sessions []model.ScreenShareSession
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM screen_share_sessions
		WHERE status = 'ENDED'
		AND (requester_id = $1 OR target_id = $1)
		AND ($2::timestamptz IS NULL OR created_at >= $2)
		AND ($3::timestamptz IS NULL OR created_at <= $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, userID, from, to, limit, offset)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) FindByStatus(ctx context.Context, status model.SessionStatus) ([]model.ScreenShareSession, error) {
	var sessions []model.ScreenShareSession
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM screen_share_sessions WHERE status = $1
	`, status)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func oneRowAffected(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
