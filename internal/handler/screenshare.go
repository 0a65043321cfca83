package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/mates-hr/screenshare-server-go/internal/errors"
	"github.com/mates-hr/screenshare-server-go/internal/httputil"
	"github.com/mates-hr/screenshare-server-go/internal/middleware"
	"github.com/mates-hr/screenshare-server-go/internal/service"
)

type ScreenShareHandler struct {
	screenShareService *service.ScreenShareService
}

func NewScreenShareHandler(screenShareService *service.ScreenShareService) *ScreenShareHandler {
	return &ScreenShareHandler{
		screenShareService: screenShareService,
	}
}

func (h *ScreenShareHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/request", h.Request)
	r.Post("/sessions/{id}/respond", h.Respond)
	r.Post("/sessions/{id}/start", h.Start)
	r.Post("/sessions/{id}/end", h.End)
	r.Post("/sessions/{id}/signal", h.Signal)
	r.Post("/sessions/{id}/recording/start", h.StartRecording)
	r.Get("/sessions/active", h.ListActive)
	r.Get("/sessions/history", h.ListHistory)

	return r
}

// POST /v1/screenshare/request
func (h *ScreenShareHandler) Request(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var params service.RequestParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	session, err := h.screenShareService.Request(r.Context(), user, params)
	if err != nil {
		h.writeServiceError(w, err, "failed to request screen share")
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// POST /v1/screenshare/sessions/{id}/respond
func (h *ScreenShareHandler) Respond(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	sessionID := chi.URLParam(r, "id")

	var body struct {
		Accepted    bool    `json:"accepted"`
		ConsentNote *string `json:"consentNote"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	session, err := h.screenShareService.Respond(r.Context(), sessionID, user.ID, body.Accepted, body.ConsentNote)
	if err != nil {
		h.writeServiceError(w, err, "failed to respond to screen share")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// POST /v1/screenshare/sessions/{id}/start
func (h *ScreenShareHandler) Start(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	sessionID := chi.URLParam(r, "id")

	params, err := h.screenShareService.Start(r.Context(), sessionID, user.ID)
	if err != nil {
		h.writeServiceError(w, err, "failed to start screen share")
		return
	}

	writeJSON(w, http.StatusOK, params)
}

// POST /v1/screenshare/sessions/{id}/end
func (h *ScreenShareHandler) End(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	sessionID := chi.URLParam(r, "id")

	result, err := h.screenShareService.End(r.Context(), sessionID, user.ID)
	if err != nil {
		h.writeServiceError(w, err, "failed to end screen share")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /v1/screenshare/sessions/{id}/signal
func (h *ScreenShareHandler) Signal(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	sessionID := chi.URLParam(r, "id")

	var body struct {
		Signal json.RawMessage `json:"signal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if len(body.Signal) == 0 {
		httputil.WriteError(w, apperrors.MissingRequired("signal"))
		return
	}

	if err := h.screenShareService.RelaySignal(r.Context(), sessionID, user.ID, body.Signal); err != nil {
		h.writeServiceError(w, err, "failed to relay signal")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"delivered": true})
}

// POST /v1/screenshare/sessions/{id}/recording/start
func (h *ScreenShareHandler) StartRecording(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	sessionID := chi.URLParam(r, "id")

	if err := h.screenShareService.StartRecording(r.Context(), sessionID, user.ID); err != nil {
		h.writeServiceError(w, err, "failed to start recording")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"recording": true})
}

// GET /v1/screenshare/sessions/active
func (h *ScreenShareHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	sessions, err := h.screenShareService.ListActive(r.Context(), user.ID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list active sessions")
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

// GET /v1/screenshare/sessions/history
func (h *ScreenShareHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	filters, err := parseHistoryFilters(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	sessions, err := h.screenShareService.ListHistory(r.Context(), user.ID, filters)
	if err != nil {
		h.writeServiceError(w, err, "failed to list session history")
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

func parseHistoryFilters(r *http.Request) (service.HistoryFilters, error) {
	var filters service.HistoryFilters

	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filters, apperrors.InvalidInput("from", "must be an RFC3339 timestamp")
		}
		filters.From = &t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filters, apperrors.InvalidInput("to", "must be an RFC3339 timestamp")
		}
		filters.To = &t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return filters, apperrors.InvalidInput("limit", "must be a non-negative integer")
		}
		filters.Limit = n
	}
	if offset := q.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			return filters, apperrors.InvalidInput("offset", "must be a non-negative integer")
		}
		filters.Offset = n
	}

	return filters, nil
}

func (h *ScreenShareHandler) writeServiceError(w http.ResponseWriter, err error, msg string) {
	if !apperrors.IsAppError(err) {
		log.Error().Err(err).Msg(msg)
	}
	httputil.WriteError(w, err)
}
