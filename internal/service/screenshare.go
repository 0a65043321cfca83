package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mates-hr/screenshare-server-go/internal/audit"
	"github.com/mates-hr/screenshare-server-go/internal/config"
	apperrors "github.com/mates-hr/screenshare-server-go/internal/errors"
	"github.com/mates-hr/screenshare-server-go/internal/model"
	"github.com/mates-hr/screenshare-server-go/internal/notify"
	"github.com/mates-hr/screenshare-server-go/internal/repository"
)

// Transport delivers realtime events to a connected user. At-least-once,
// best-effort ordering per user.
type Transport interface {
	SendToUser(ctx context.Context, userID string, eventType string, payload any) error
}

type RequestParams struct {
	TargetUserID string             `json:"targetUserId"`
	Reason       string             `json:"reason"`
	Duration     int                `json:"duration"` // minutes
	Scope        model.ConsentScope `json:"scope"`
}

type ConnectionParams struct {
	SessionID    string             `json:"sessionId"`
	RoomID       string             `json:"roomId"`
	IceServers   []config.IceServer `json:"iceServers"`
	SessionToken string             `json:"sessionToken"`
}

type EndResult struct {
	Success         bool `json:"success"`
	DurationSeconds int  `json:"duration"`
}

type HistoryFilters struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

const (
	defaultHistoryLimit = 20
	expiryCheckTimeout  = 10 * time.Second
)

// ScreenShareService drives the consent and session lifecycle:
//
//	PENDING -> ACCEPTED -> ACTIVE -> ENDED
//	PENDING -> REJECTED
//	PENDING -> EXPIRED (consent deadline, no response)
//
// Transitions are guarded by conditional updates in the repository, so a
// racing respond() and expiry timer resolve to exactly one winner.
type ScreenShareService struct {
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
	notifier    notify.Notifier
	transport   Transport
	recorder    audit.Recorder
	cfg         *config.Config
	index       *ActiveIndex
	timers      *expiryTimers
}

func NewScreenShareService(
	sessionRepo repository.SessionRepository,
	userRepo repository.UserRepository,
	notifier notify.Notifier,
	transport Transport,
	recorder audit.Recorder,
	cfg *config.Config,
) *ScreenShareService {
	return &ScreenShareService{
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		notifier:    notifier,
		transport:   transport,
		recorder:    recorder,
		cfg:         cfg,
		index:       NewActiveIndex(),
		timers:      newExpiryTimers(),
	}
}

// RebuildActiveIndex reloads the in-memory index from persisted ACTIVE rows.
// Called on startup; the index is a cache, losing it costs only the fast
// path during signaling.
func (s *ScreenShareService) RebuildActiveIndex(ctx context.Context) error {
	sessions, err := s.sessionRepo.FindByStatus(ctx, model.SessionStatusActive)
	if err != nil {
		return fmt.Errorf("load active sessions: %w", err)
	}

	s.index.Rebuild(sessions)
	if len(sessions) > 0 {
		log.Info().Int("count", len(sessions)).Msg("active session index rebuilt")
	}
	return nil
}

// Close stops all pending expiry timers.
func (s *ScreenShareService) Close() {
	s.timers.stopAll()
}

// Request creates a PENDING session after the consent gate checks pass:
// the requester holds a privileged role, the target exists, and neither
// party is already in a non-terminal session. The engagement check and the
// insert are one atomic store operation, so racing requests for the same
// user yield exactly one session.
func (s *ScreenShareService) Request(ctx context.Context, requester *model.User, params RequestParams) (*model.ScreenShareSession, error) {
	if !requester.HasAnyRole(model.RoleAdmin, model.RoleHR, model.RoleManager) {
		return nil, apperrors.Forbidden("You do not have permission to request screen share")
	}

	if params.TargetUserID == "" {
		return nil, apperrors.MissingRequired("targetUserId")
	}

	target, err := s.userRepo.FindByID(ctx, params.TargetUserID)
	if err != nil {
		return nil, fmt.Errorf("find target user: %w", err)
	}
	if target == nil {
		return nil, apperrors.NotFound("Target user")
	}

	scope := params.Scope
	if scope == "" {
		scope = model.ScopeScreen
	}
	if !model.ValidScope(scope) {
		return nil, apperrors.InvalidInput("scope", "must be screen, window, or tab")
	}

	duration := params.Duration
	if duration <= 0 {
		duration = s.cfg.DefaultDurationMin
	}

	session, won, err := s.sessionRepo.CreateIfIdle(ctx, model.CreateSessionParams{
		ID:               uuid.NewString(),
		RequesterID:      requester.ID,
		TargetID:         params.TargetUserID,
		SessionToken:     uuid.NewString(),
		RoomID:           "screenshare-" + uuid.NewString(),
		ConsentScope:     scope,
		Reason:           params.Reason,
		RequestedMinutes: duration,
		ExpiresAt:        time.Now().Add(s.cfg.ConsentTTL()),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if !won {
		return nil, apperrors.Conflict("There is already an active screen share session")
	}

	session.Requester = requester.Profile()
	session.Target = target.Profile()

	s.timers.schedule(session.ID, s.cfg.ConsentTTL(), func() {
		s.expireSession(session.ID)
	})

	reason := params.Reason
	if reason == "" {
		reason = "Support assistance"
	}
	actionURL := "/screenshare/request/" + session.ID
	s.notifier.Send(ctx, model.CreateNotificationParams{
		UserID:    params.TargetUserID,
		Type:      model.NotificationInfo,
		Priority:  model.PriorityUrgent,
		Title:     "Screen Share Request",
		Body:      fmt.Sprintf("%s is requesting to view your screen. Reason: %s", requester.FullName(), reason),
		ActionURL: &actionURL,
		Channels:  []string{"inapp"},
	})

	s.sendEvent(ctx, params.TargetUserID, "screenshare:request", map[string]any{
		"session": map[string]any{
			"id":        session.ID,
			"requester": session.Requester,
			"reason":    params.Reason,
			"duration":  duration,
			"scope":     scope,
		},
	})

	log.Info().
		Str("sessionId", session.ID).
		Str("requesterId", requester.ID).
		Str("targetId", params.TargetUserID).
		Str("scope", string(scope)).
		Msg("screen share requested")

	return session, nil
}

// Respond records the target's consent decision. The PENDING check is a
// conditional update, so a response racing the expiry timer has exactly one
// winner; the loser gets CONFLICT.
func (s *ScreenShareService) Respond(ctx context.Context, sessionID, userID string, accepted bool, note *string) (*model.ScreenShareSession, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Screen share session")
	}

	if session.TargetID != userID {
		return nil, apperrors.Forbidden("You are not the target of this screen share request")
	}

	now := time.Now()
	won, err := s.sessionRepo.MarkResponded(ctx, sessionID, accepted, note, now)
	if err != nil {
		return nil, fmt.Errorf("mark responded: %w", err)
	}
	if !won {
		return nil, apperrors.Conflict("This screen share request has already been processed")
	}

	s.timers.cancel(sessionID)

	if accepted {
		session.Status = model.SessionStatusAccepted
		session.ConsentGivenAt = &now
	} else {
		session.Status = model.SessionStatusRejected
	}
	session.ConsentNote = note
	session.UpdatedAt = now

	target, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("failed to load target for notification")
	}

	outcome := "rejected"
	notifType := model.NotificationWarning
	if accepted {
		outcome = "accepted"
		notifType = model.NotificationSuccess
	}

	body := fmt.Sprintf("Your screen share request has been %s.", outcome)
	if target != nil {
		body = fmt.Sprintf("%s has %s your screen share request.", target.FullName(), outcome)
	}
	if note != nil && *note != "" {
		body += " Note: " + *note
	}

	s.notifier.Send(ctx, model.CreateNotificationParams{
		UserID:   session.RequesterID,
		Type:     notifType,
		Priority: model.PriorityHigh,
		Title:    fmt.Sprintf("Screen Share %s", titleCase(outcome)),
		Body:     body,
		Channels: []string{"inapp"},
	})

	s.sendEvent(ctx, session.RequesterID, "screenshare:response", map[string]any{
		"sessionId":   sessionID,
		"accepted":    accepted,
		"consentNote": note,
	})

	if accepted {
		s.publishReadiness(ctx, session)
	}

	log.Info().
		Str("sessionId", sessionID).
		Bool("accepted", accepted).
		Msg("screen share request answered")

	return session, nil
}

// Start transitions ACCEPTED -> ACTIVE and hands out connection parameters.
func (s *ScreenShareService) Start(ctx context.Context, sessionID, userID string) (*ConnectionParams, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Screen share session")
	}

	if !session.IsMember(userID) {
		return nil, apperrors.Forbidden("You are not part of this screen share session")
	}

	now := time.Now()
	won, err := s.sessionRepo.MarkActive(ctx, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("mark active: %w", err)
	}
	if !won {
		return nil, apperrors.Conflict("This screen share session has not been accepted")
	}

	s.index.Put(sessionID, &ActiveEntry{
		RequesterID: session.RequesterID,
		TargetID:    session.TargetID,
		RoomID:      session.RoomID,
		StartedAt:   now,
	})

	s.recorder.Record(ctx, model.CreateAuditEntryParams{
		UserID:     userID,
		Action:     audit.ActionSessionStart,
		EntityType: audit.EntityScreenShare,
		EntityID:   sessionID,
		OldValues:  map[string]any{"status": model.SessionStatusAccepted},
		NewValues:  map[string]any{"status": model.SessionStatusActive, "startedAt": now.Format(time.RFC3339)},
	})

	log.Info().
		Str("sessionId", sessionID).
		Str("startedBy", userID).
		Msg("screen share session started")

	return &ConnectionParams{
		SessionID:    sessionID,
		RoomID:       session.RoomID,
		IceServers:   s.cfg.IceServers(),
		SessionToken: session.SessionToken,
	}, nil
}

// End transitions ACTIVE -> ENDED, computing duration from startedAt.
func (s *ScreenShareService) End(ctx context.Context, sessionID, userID string) (*EndResult, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Screen share session")
	}

	if !session.IsMember(userID) {
		return nil, apperrors.Forbidden("You are not part of this screen share session")
	}

	now := time.Now()
	duration := 0
	if session.StartedAt != nil {
		duration = int(now.Sub(*session.StartedAt).Seconds())
	}

	won, err := s.sessionRepo.MarkEnded(ctx, sessionID, userID, duration, now)
	if err != nil {
		return nil, fmt.Errorf("mark ended: %w", err)
	}
	if !won {
		return nil, apperrors.Conflict("This screen share session is not active")
	}

	s.index.Remove(sessionID)

	s.notifier.Send(ctx, model.CreateNotificationParams{
		UserID:   session.Counterparty(userID),
		Type:     model.NotificationInfo,
		Priority: model.PriorityNormal,
		Title:    "Screen Share Ended",
		Body:     fmt.Sprintf("The screen share session has ended. Duration: %d minutes", duration/60),
		Channels: []string{"inapp"},
	})

	s.sendEvent(ctx, session.RequesterID, "screenshare:ended", map[string]any{"sessionId": sessionID})
	s.sendEvent(ctx, session.TargetID, "screenshare:ended", map[string]any{"sessionId": sessionID})

	s.recorder.Record(ctx, model.CreateAuditEntryParams{
		UserID:     userID,
		Action:     audit.ActionSessionEnd,
		EntityType: audit.EntityScreenShare,
		EntityID:   sessionID,
		OldValues:  map[string]any{"status": model.SessionStatusActive},
		NewValues: map[string]any{
			"status":   model.SessionStatusEnded,
			"endedAt":  now.Format(time.RFC3339),
			"duration": duration,
			"endedBy":  userID,
		},
	})

	log.Info().
		Str("sessionId", sessionID).
		Str("endedBy", userID).
		Int("durationSeconds", duration).
		Msg("screen share session ended")

	return &EndResult{Success: true, DurationSeconds: duration}, nil
}

// RelaySignal forwards an opaque signaling payload to the counterparty.
// Membership is the only check: negotiation during ACCEPTED, before the
// formal start, is permitted. The active index serves as the fast path; a
// session not yet in it falls back to a store read.
func (s *ScreenShareService) RelaySignal(ctx context.Context, sessionID, fromUserID string, payload json.RawMessage) error {
	var recipientID string

	if entry, ok := s.index.Get(sessionID); ok {
		if !entry.IsMember(fromUserID) {
			return apperrors.Forbidden("You are not part of this screen share session")
		}
		if fromUserID == entry.RequesterID {
			recipientID = entry.TargetID
		} else {
			recipientID = entry.RequesterID
		}
	} else {
		session, err := s.sessionRepo.FindByID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("find session: %w", err)
		}
		if session == nil {
			return apperrors.NotFound("Screen share session")
		}
		if !session.IsMember(fromUserID) {
			return apperrors.Forbidden("You are not part of this screen share session")
		}
		recipientID = session.Counterparty(fromUserID)
	}

	if err := s.transport.SendToUser(ctx, recipientID, "screenshare:signal", map[string]any{
		"sessionId": sessionID,
		"signal":    payload,
	}); err != nil {
		return fmt.Errorf("relay signal: %w", err)
	}
	return nil
}

// StartRecording notifies the target that the session is being recorded.
// Requester only.
func (s *ScreenShareService) StartRecording(ctx context.Context, sessionID, userID string) error {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}
	if session == nil || session.RequesterID != userID {
		return apperrors.Forbidden("Only the requester can start recording")
	}

	log.Info().Str("sessionId", sessionID).Msg("recording started")

	s.notifier.Send(ctx, model.CreateNotificationParams{
		UserID:   session.TargetID,
		Type:     model.NotificationWarning,
		Priority: model.PriorityHigh,
		Title:    "Recording Started",
		Body:     "This screen share session is now being recorded.",
		Channels: []string{"inapp"},
	})

	return nil
}

// ListActive returns the caller's sessions with non-terminal status,
// newest first, with both party profiles attached.
func (s *ScreenShareService) ListActive(ctx context.Context, userID string) ([]model.ScreenShareSession, error) {
	sessions, err := s.sessionRepo.FindNonTerminalByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find non-terminal sessions: %w", err)
	}

	if err := s.attachProfiles(ctx, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListHistory returns the caller's ENDED sessions.
func (s *ScreenShareService) ListHistory(ctx context.Context, userID string, filters HistoryFilters) ([]model.ScreenShareSession, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	sessions, err := s.sessionRepo.FindEndedByUser(ctx, userID, filters.From, filters.To, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("find ended sessions: %w", err)
	}

	if err := s.attachProfiles(ctx, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// expireSession fires when the consent deadline elapses. The conditional
// update makes it a no-op when a response already won; only the winner
// notifies. A store error here is logged and the timer is not rescheduled;
// the sweep job picks the session up later.
func (s *ScreenShareService) expireSession(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), expiryCheckTimeout)
	defer cancel()

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("expiry check failed")
		return
	}
	if session == nil {
		return
	}

	won, err := s.sessionRepo.MarkExpired(ctx, sessionID, time.Now())
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("expiry transition failed")
		return
	}
	if !won {
		log.Debug().Str("sessionId", sessionID).Msg("expiry lost race to response, skipping")
		return
	}

	s.notifyExpired(ctx, session.RequesterID)

	log.Info().Str("sessionId", sessionID).Msg("screen share request expired")
}

// NotifyExpired sends the expiry notification to a requester. Shared with
// the sweep job, which wins its own conditional updates.
func (s *ScreenShareService) NotifyExpired(ctx context.Context, requesterID string) {
	s.notifyExpired(ctx, requesterID)
}

func (s *ScreenShareService) notifyExpired(ctx context.Context, requesterID string) {
	s.notifier.Send(ctx, model.CreateNotificationParams{
		UserID:   requesterID,
		Type:     model.NotificationWarning,
		Priority: model.PriorityNormal,
		Title:    "Screen Share Request Expired",
		Body:     "Your screen share request has expired due to no response.",
		Channels: []string{"inapp"},
	})
}

func (s *ScreenShareService) publishReadiness(ctx context.Context, session *model.ScreenShareSession) {
	cfg := ConnectionParams{
		SessionID:    session.ID,
		RoomID:       session.RoomID,
		IceServers:   s.cfg.IceServers(),
		SessionToken: session.SessionToken,
	}

	s.sendEvent(ctx, session.RequesterID, "screenshare:ready", map[string]any{
		"config": cfg,
		"role":   "viewer",
	})
	s.sendEvent(ctx, session.TargetID, "screenshare:ready", map[string]any{
		"config": cfg,
		"role":   "sharer",
	})
}

func (s *ScreenShareService) sendEvent(ctx context.Context, userID, eventType string, payload any) {
	if err := s.transport.SendToUser(ctx, userID, eventType, payload); err != nil {
		log.Warn().Err(err).
			Str("userId", userID).
			Str("eventType", eventType).
			Msg("failed to send realtime event")
	}
}

func (s *ScreenShareService) attachProfiles(ctx context.Context, sessions []model.ScreenShareSession) error {
	if len(sessions) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	ids := make([]string, 0, len(sessions)*2)
	for _, session := range sessions {
		for _, id := range []string{session.RequesterID, session.TargetID} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	profiles, err := s.userRepo.ProfilesByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load user profiles: %w", err)
	}

	for i := range sessions {
		sessions[i].Requester = profiles[sessions[i].RequesterID]
		sessions[i].Target = profiles[sessions[i].TargetID]
	}
	return nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
