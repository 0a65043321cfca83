package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mates-hr/screenshare-server-go/internal/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error)
	ProfilesByIDs(ctx context.Context, ids []string) (map[string]*model.UserProfile, error)
	WithTx(tx *sqlx.Tx) UserRepository
}

type userDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type userRepo struct {
	db userDB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) WithTx(tx *sqlx.Tx) UserRepository {
	return &userRepo{db: tx}
}

const userSelect = `
	SELECT u.id, u.first_name, u.last_name, u.email, u.avatar, u.api_token_hash,
		u.created_at,
		COALESCE(array_agg(r.name) FILTER (WHERE r.name IS NOT NULL), '{}') AS roles
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.id
	LEFT JOIN roles r ON r.id = ur.role_id
`

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, userSelect+`
		WHERE u.id = $1
		GROUP BY u.id
	`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, userSelect+`
		WHERE u.api_token_hash = $1
		GROUP BY u.id
	`, tokenHash)
	return HandleNotFound(&user, err)
}

func (r *userRepo) ProfilesByIDs(ctx context.Context, ids []string) (map[string]*model.UserProfile, error) {
	var profiles []model.UserProfile
	err := r.db.SelectContext(ctx, &profiles, `
		SELECT id, first_name, last_name, email, avatar
		FROM users
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*model.UserProfile, len(profiles))
	for i := range profiles {
		byID[profiles[i].ID] = &profiles[i]
	}
	return byID, nil
}
