package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mates-hr/screenshare-server-go/internal/model"
	"github.com/mates-hr/screenshare-server-go/internal/repository"
	"github.com/mates-hr/screenshare-server-go/internal/sse"
)

// Notifier delivers user-facing notifications. Send is fire-and-forget:
// failures are logged, never surfaced to the caller, and never roll back the
// state transition that triggered them.
type Notifier interface {
	Send(ctx context.Context, params model.CreateNotificationParams)
}

type Service struct {
	repo   repository.NotificationRepository
	broker *sse.Broker
}

func NewService(repo repository.NotificationRepository, broker *sse.Broker) *Service {
	return &Service{repo: repo, broker: broker}
}

func (s *Service) Send(ctx context.Context, params model.CreateNotificationParams) {
	notification, err := s.repo.Create(ctx, params)
	if err != nil {
		log.Error().Err(err).
			Str("userId", params.UserID).
			Str("title", params.Title).
			Msg("failed to persist notification")
		return
	}

	if err := s.broker.SendToUser(ctx, params.UserID, "notification", notification); err != nil {
		log.Warn().Err(err).
			Str("userId", params.UserID).
			Str("notificationId", notification.ID).
			Msg("failed to publish notification event")
	}
}
