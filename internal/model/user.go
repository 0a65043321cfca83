package model

import (
	"time"

	"github.com/lib/pq"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleHR       Role = "HR"
	RoleManager  Role = "MANAGER"
	RoleEmployee Role = "EMPLOYEE"
)

type User struct {
	ID           string         `db:"id" json:"id"`
	FirstName    string         `db:"first_name" json:"firstName"`
	LastName     string         `db:"last_name" json:"lastName"`
	Email        string         `db:"email" json:"email"`
	Avatar       *string        `db:"avatar" json:"avatar,omitempty"`
	APITokenHash string         `db:"api_token_hash" json:"-"`
	Roles        pq.StringArray `db:"roles" json:"roles"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
}

// HasAnyRole reports whether the user holds at least one of the given roles.
func (u *User) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		for _, have := range u.Roles {
			if have == string(r) {
				return true
			}
		}
	}
	return false
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// UserProfile is the subset of user fields attached to session responses.
type UserProfile struct {
	ID        string  `db:"id" json:"id"`
	FirstName string  `db:"first_name" json:"firstName"`
	LastName  string  `db:"last_name" json:"lastName"`
	Email     string  `db:"email" json:"email"`
	Avatar    *string `db:"avatar" json:"avatar,omitempty"`
}

func (u *User) Profile() *UserProfile {
	return &UserProfile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Avatar:    u.Avatar,
	}
}
