package audit

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mates-hr/screenshare-server-go/internal/model"
	"github.com/mates-hr/screenshare-server-go/internal/repository"
)

const (
	ActionSessionStart = "SCREENSHARE_START"
	ActionSessionEnd   = "SCREENSHARE_END"

	EntityScreenShare = "ScreenShare"
)

// Recorder appends audit entries for session transitions. Entries are
// persisted and mirrored to the structured log; a persistence failure is
// logged but does not fail the transition that produced it.
type Recorder interface {
	Record(ctx context.Context, params model.CreateAuditEntryParams)
}

type Service struct {
	repo repository.AuditLogRepository
}

func NewService(repo repository.AuditLogRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Record(ctx context.Context, params model.CreateAuditEntryParams) {
	log.Info().
		Str("audit", "screenshare").
		Str("action", params.Action).
		Str("userId", params.UserID).
		Str("entityId", params.EntityID).
		Interface("oldValues", params.OldValues).
		Interface("newValues", params.NewValues).
		Msg("audit event")

	if _, err := s.repo.Append(ctx, params); err != nil {
		log.Error().Err(err).
			Str("action", params.Action).
			Str("entityId", params.EntityID).
			Msg("failed to append audit entry")
	}
}
