package model

import "time"

type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "PENDING"
	SessionStatusAccepted SessionStatus = "ACCEPTED"
	SessionStatusRejected SessionStatus = "REJECTED"
	SessionStatusActive   SessionStatus = "ACTIVE"
	SessionStatusEnded    SessionStatus = "ENDED"
	SessionStatusExpired  SessionStatus = "EXPIRED"
)

// IsTerminal reports whether no further transitions are permitted.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusRejected || s == SessionStatusEnded || s == SessionStatusExpired
}

type ConsentScope string

const (
	ScopeScreen ConsentScope = "screen"
	ScopeWindow ConsentScope = "window"
	ScopeTab    ConsentScope = "tab"
)

func ValidScope(s ConsentScope) bool {
	switch s {
	case ScopeScreen, ScopeWindow, ScopeTab:
		return true
	}
	return false
}

type ScreenShareSession struct {
	ID               string        `db:"id" json:"id"`
	RequesterID      string        `db:"requester_id" json:"requesterId"`
	TargetID         string        `db:"target_id" json:"targetId"`
	Status           SessionStatus `db:"status" json:"status"`
	SessionToken     string        `db:"session_token" json:"-"`
	RoomID           string        `db:"room_id" json:"roomId"`
	ConsentScope     ConsentScope  `db:"consent_scope" json:"consentScope"`
	Reason           string        `db:"reason" json:"reason"`
	RequestedMinutes int           `db:"requested_minutes" json:"requestedMinutes"`
	ConsentNote      *string       `db:"consent_note" json:"consentNote,omitempty"`
	ExpiresAt        time.Time     `db:"expires_at" json:"expiresAt"`
	ConsentGivenAt   *time.Time    `db:"consent_given_at" json:"consentGivenAt,omitempty"`
	StartedAt        *time.Time    `db:"started_at" json:"startedAt,omitempty"`
	EndedAt          *time.Time    `db:"ended_at" json:"endedAt,omitempty"`
	DurationSeconds  *int          `db:"duration_seconds" json:"durationSeconds,omitempty"`
	EndedBy          *string       `db:"ended_by" json:"endedBy,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updatedAt"`

	Requester *UserProfile `db:"-" json:"requester,omitempty"`
	Target    *UserProfile `db:"-" json:"target,omitempty"`
}

// IsMember reports whether userID is one of the two session parties.
func (s *ScreenShareSession) IsMember(userID string) bool {
	return s.RequesterID == userID || s.TargetID == userID
}

// Counterparty returns the other party of the session.
func (s *ScreenShareSession) Counterparty(userID string) string {
	if userID == s.RequesterID {
		return s.TargetID
	}
	return s.RequesterID
}

type CreateSessionParams struct {
	ID               string
	RequesterID      string
	TargetID         string
	SessionToken     string
	RoomID           string
	ConsentScope     ConsentScope
	Reason           string
	RequestedMinutes int
	ExpiresAt        time.Time
}
