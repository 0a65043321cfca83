package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/mates-hr/screenshare-server-go/internal/errors"
	"github.com/mates-hr/screenshare-server-go/internal/httputil"
	"github.com/mates-hr/screenshare-server-go/internal/middleware"
	"github.com/mates-hr/screenshare-server-go/internal/repository"
)

const defaultUnreadLimit = 50

type NotificationsHandler struct {
	notificationRepo repository.NotificationRepository
}

func NewNotificationsHandler(notificationRepo repository.NotificationRepository) *NotificationsHandler {
	return &NotificationsHandler{notificationRepo: notificationRepo}
}

func (h *NotificationsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListUnread)
	r.Post("/{id}/read", h.MarkRead)

	return r
}

// GET /v1/notifications
func (h *NotificationsHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	limit := defaultUnreadLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, apperrors.InvalidInput("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	notifications, err := h.notificationRepo.FindUnreadByUser(r.Context(), user.ID, limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list notifications")
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, notifications)
}

// POST /v1/notifications/{id}/read
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.notificationRepo.MarkRead(r.Context(), id, user.ID); err != nil {
		log.Error().Err(err).Msg("failed to mark notification read")
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}
