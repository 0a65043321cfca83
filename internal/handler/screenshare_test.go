package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mates-hr/screenshare-server-go/internal/config"
	"github.com/mates-hr/screenshare-server-go/internal/middleware"
	"github.com/mates-hr/screenshare-server-go/internal/model"
	"github.com/mates-hr/screenshare-server-go/internal/repository"
	"github.com/mates-hr/screenshare-server-go/internal/service"
)

// Mock repositories

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.ScreenShareSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScreenShareSession), args.Error(1)
}

func (m *mockSessionRepo) CreateIfIdle(ctx context.Context, params model.CreateSessionParams) (*model.ScreenShareSession, bool, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.ScreenShareSession), args.Bool(1), args.Error(2)
}

func (m *mockSessionRepo) MarkResponded(ctx context.Context, id string, accepted bool, note *string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, accepted, note, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) MarkActive(ctx context.Context, id string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) MarkEnded(ctx context.Context, id string, endedBy string, durationSeconds int, at time.Time) (bool, error) {
	args := m.Called(ctx, id, endedBy, durationSeconds, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) MarkExpired(ctx context.Context, id string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) ExpireOverdue(ctx context.Context) ([]model.ScreenShareSession, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.ScreenShareSession), args.Error(1)
}

func (m *mockSessionRepo) FindNonTerminalByUser(ctx context.Context, userID string) ([]model.ScreenShareSession, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.ScreenShareSession), args.Error(1)
}

func (m *mockSessionRepo) FindEndedByUser(ctx context.Context, userID string, from, to *time.Time, limit, offset int) ([]model.ScreenShareSession, error) {
	args := m.Called(ctx, userID, from, to, limit, offset)
	return args.Get(0).([]model.ScreenShareSession), args.Error(1)
}

func (m *mockSessionRepo) FindByStatus(ctx context.Context, status model.SessionStatus) ([]model.ScreenShareSession, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]model.ScreenShareSession), args.Error(1)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return m
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) ProfilesByIDs(ctx context.Context, ids []string) (map[string]*model.UserProfile, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(map[string]*model.UserProfile), args.Error(1)
}

func (m *mockUserRepo) WithTx(tx *sqlx.Tx) repository.UserRepository {
	return m
}

// Fake sinks

type noopNotifier struct{}

func (noopNotifier) Send(ctx context.Context, params model.CreateNotificationParams) {}

type noopTransport struct{}

func (noopTransport) SendToUser(ctx context.Context, userID string, eventType string, payload any) error {
	return nil
}

type noopRecorder struct{}

func (noopRecorder) Record(ctx context.Context, params model.CreateAuditEntryParams) {}

type testEnv struct {
	sessions *mockSessionRepo
	users    *mockUserRepo
	router   chi.Router
	svc      *service.ScreenShareService
}

func newTestEnv(user *model.User) *testEnv {
	env := &testEnv{
		sessions: new(mockSessionRepo),
		users:    new(mockUserRepo),
	}

	cfg := &config.Config{
		ConsentTTLSeconds:  120,
		DefaultDurationMin: 30,
		StunURLs:           "stun:stun.l.google.com:19302",
	}
	env.svc = service.NewScreenShareService(env.sessions, env.users, noopNotifier{}, noopTransport{}, noopRecorder{}, cfg)

	handler := NewScreenShareHandler(env.svc)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Mount("/screenshare", handler.Routes())
	env.router = router

	return env
}

func hrUser() *model.User {
	return &model.User{
		ID:        "hr-1",
		FirstName: "Hanna",
		LastName:  "Reyes",
		Roles:     []string{"HR"},
	}
}

func employeeUser() *model.User {
	return &model.User{
		ID:        "emp-1",
		FirstName: "Theo",
		LastName:  "Tran",
		Roles:     []string{"EMPLOYEE"},
	}
}

func pendingSession() *model.ScreenShareSession {
	return &model.ScreenShareSession{
		ID:           "sess-1",
		RequesterID:  "hr-1",
		TargetID:     "emp-1",
		Status:       model.SessionStatusPending,
		SessionToken: "tok-1",
		RoomID:       "screenshare-room-1",
		ConsentScope: model.ScopeScreen,
		ExpiresAt:    time.Now().Add(2 * time.Minute),
	}
}

func TestRequestEndpoint(t *testing.T) {
	t.Run("returns 201 with created session", func(t *testing.T) {
		env := newTestEnv(hrUser())
		defer env.svc.Close()

		env.users.On("FindByID", mock.Anything, "emp-1").Return(employeeUser(), nil)
		env.sessions.On("CreateIfIdle", mock.Anything, mock.Anything).Return(pendingSession(), true, nil)

		body := bytes.NewBufferString(`{"targetUserId": "emp-1", "reason": "Support ticket 441"}`)
		req := httptest.NewRequest(http.MethodPost, "/screenshare/request", body)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)

		var session model.ScreenShareSession
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
		assert.Equal(t, "sess-1", session.ID)
		assert.Equal(t, model.SessionStatusPending, session.Status)
	})

	t.Run("returns 403 for non-privileged requester", func(t *testing.T) {
		env := newTestEnv(employeeUser())
		defer env.svc.Close()

		body := bytes.NewBufferString(`{"targetUserId": "hr-1"}`)
		req := httptest.NewRequest(http.MethodPost, "/screenshare/request", body)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "FORBIDDEN")
	})

	t.Run("returns 400 for malformed body", func(t *testing.T) {
		env := newTestEnv(hrUser())
		defer env.svc.Close()

		body := bytes.NewBufferString(`{invalid`)
		req := httptest.NewRequest(http.MethodPost, "/screenshare/request", body)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("returns 409 when session already exists", func(t *testing.T) {
		env := newTestEnv(hrUser())
		defer env.svc.Close()

		env.users.On("FindByID", mock.Anything, "emp-1").Return(employeeUser(), nil)
		env.sessions.On("CreateIfIdle", mock.Anything, mock.Anything).Return(nil, false, nil)

		body := bytes.NewBufferString(`{"targetUserId": "emp-1"}`)
		req := httptest.NewRequest(http.MethodPost, "/screenshare/request", body)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "CONFLICT")
	})
}

func TestRespondEndpoint(t *testing.T) {
	t.Run("returns 200 with updated session", func(t *testing.T) {
		env := newTestEnv(employeeUser())
		defer env.svc.Close()

		env.sessions.On("FindByID", mock.Anything, "sess-1").Return(pendingSession(), nil)
		env.sessions.On("MarkResponded", mock.Anything, "sess-1", true, (*string)(nil), mock.Anything).Return(true, nil)
		env.users.On("FindByID", mock.Anything, "emp-1").Return(employeeUser(), nil)

		body := bytes.NewBufferString(`{"accepted": true}`)
		req := httptest.NewRequest(http.MethodPost, "/screenshare/sessions/sess-1/respond", body)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var session model.ScreenShareSession
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
		assert.Equal(t, model.SessionStatusAccepted, session.Status)
	})

	t.Run("returns 409 when already processed", func(t *testing.T) {
		env := newTestEnv(employeeUser())
		defer env.svc.Close()

		env.sessions.On("FindByID", mock.Anything, "sess-1").Return(pendingSession(), nil)
		env.sessions.On("MarkResponded", mock.Anything, "sess-1", false, (*string)(nil), mock.Anything).Return(false, nil)

		body := bytes.NewBufferString(`{"accepted": false}`)
		req := httptest.NewRequest(http.MethodPost, "/screenshare/sessions/sess-1/respond", body)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("returns 404 for unknown session", func(t *testing.T) {
		env := newTestEnv(employeeUser())
		defer env.svc.Close()

		env.sessions.On("FindByID", mock.Anything, "missing").Return(nil, nil)

		body := bytes.NewBufferString(`{"accepted": true}`)
		req := httptest.NewRequest(http.MethodPost, "/screenshare/sessions/missing/respond", body)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestStartEndpoint(t *testing.T) {
	t.Run("returns connection parameters", func(t *testing.T) {
		env := newTestEnv(hrUser())
		defer env.svc.Close()

		accepted := pendingSession()
		accepted.Status = model.SessionStatusAccepted
		env.sessions.On("FindByID", mock.Anything, "sess-1").Return(accepted, nil)
		env.sessions.On("MarkActive", mock.Anything, "sess-1", mock.Anything).Return(true, nil)

		req := httptest.NewRequest(http.MethodPost, "/screenshare/sessions/sess-1/start", nil)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var params service.ConnectionParams
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&params))
		assert.Equal(t, "sess-1", params.SessionID)
		assert.Equal(t, "screenshare-room-1", params.RoomID)
		assert.Equal(t, "tok-1", params.SessionToken)
		assert.NotEmpty(t, params.IceServers)
	})
}

func TestEndEndpoint(t *testing.T) {
	t.Run("returns duration", func(t *testing.T) {
		env := newTestEnv(hrUser())
		defer env.svc.Close()

		active := pendingSession()
		active.Status = model.SessionStatusActive
		startedAt := time.Now().Add(-90 * time.Second)
		active.StartedAt = &startedAt

		env.sessions.On("FindByID", mock.Anything, "sess-1").Return(active, nil)
		env.sessions.On("MarkEnded", mock.Anything, "sess-1", "hr-1", mock.Anything, mock.Anything).Return(true, nil)

		req := httptest.NewRequest(http.MethodPost, "/screenshare/sessions/sess-1/end", nil)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var result service.EndResult
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
		assert.True(t, result.Success)
		assert.GreaterOrEqual(t, result.DurationSeconds, 90)
	})
}

func TestSignalEndpoint(t *testing.T) {
	t.Run("relays signal to counterparty", func(t *testing.T) {
		env := newTestEnv(hrUser())
		defer env.svc.Close()

		active := pendingSession()
		active.Status = model.SessionStatusActive
		env.sessions.On("FindByID", mock.Anything, "sess-1").Return(active, nil)

		body := bytes.NewBufferString(`{"signal": {"type": "offer", "sdp": "v=0"}}`)
		req := httptest.NewRequest(http.MethodPost, "/screenshare/sessions/sess-1/signal", body)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"delivered":true`)
	})

	t.Run("returns 400 when signal missing", func(t *testing.T) {
		env := newTestEnv(hrUser())
		defer env.svc.Close()

		body := bytes.NewBufferString(`{}`)
		req := httptest.NewRequest(http.MethodPost, "/screenshare/sessions/sess-1/signal", body)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("returns 403 for non-member", func(t *testing.T) {
		env := newTestEnv(&model.User{ID: "stranger", Roles: []string{"HR"}})
		defer env.svc.Close()

		env.sessions.On("FindByID", mock.Anything, "sess-1").Return(pendingSession(), nil)

		body := bytes.NewBufferString(`{"signal": {"type": "offer"}}`)
		req := httptest.NewRequest(http.MethodPost, "/screenshare/sessions/sess-1/signal", body)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestListActiveEndpoint(t *testing.T) {
	t.Run("returns sessions for current user", func(t *testing.T) {
		env := newTestEnv(hrUser())
		defer env.svc.Close()

		env.sessions.On("FindNonTerminalByUser", mock.Anything, "hr-1").
			Return([]model.ScreenShareSession{*pendingSession()}, nil)
		env.users.On("ProfilesByIDs", mock.Anything, mock.Anything).
			Return(map[string]*model.UserProfile{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/screenshare/sessions/active", nil)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var sessions []model.ScreenShareSession
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&sessions))
		assert.Len(t, sessions, 1)
	})
}

func TestListHistoryEndpoint(t *testing.T) {
	t.Run("passes filters through", func(t *testing.T) {
		env := newTestEnv(hrUser())
		defer env.svc.Close()

		env.sessions.On("FindEndedByUser", mock.Anything, "hr-1", mock.Anything, mock.Anything, 10, 5).
			Return([]model.ScreenShareSession{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/screenshare/sessions/history?limit=10&offset=5", nil)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		env.sessions.AssertExpectations(t)
	})

	t.Run("rejects malformed from timestamp", func(t *testing.T) {
		env := newTestEnv(hrUser())
		defer env.svc.Close()

		req := httptest.NewRequest(http.MethodGet, "/screenshare/sessions/history?from=yesterday", nil)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestStartRecordingEndpoint(t *testing.T) {
	t.Run("returns 403 for target", func(t *testing.T) {
		env := newTestEnv(employeeUser())
		defer env.svc.Close()

		active := pendingSession()
		active.Status = model.SessionStatusActive
		env.sessions.On("FindByID", mock.Anything, "sess-1").Return(active, nil)

		req := httptest.NewRequest(http.MethodPost, "/screenshare/sessions/sess-1/recording/start", nil)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("confirms recording for requester", func(t *testing.T) {
		env := newTestEnv(hrUser())
		defer env.svc.Close()

		active := pendingSession()
		active.Status = model.SessionStatusActive
		env.sessions.On("FindByID", mock.Anything, "sess-1").Return(active, nil)

		req := httptest.NewRequest(http.MethodPost, "/screenshare/sessions/sess-1/recording/start", nil)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"recording":true`)
	})
}
