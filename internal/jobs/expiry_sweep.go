package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mates-hr/screenshare-server-go/internal/repository"
)

// ExpiryNotifier informs a requester that their pending request expired.
type ExpiryNotifier interface {
	NotifyExpired(ctx context.Context, requesterID string)
}

// ExpirySweepJob periodically expires PENDING sessions whose consent
// deadline has passed. The per-session timers handle the normal case; the
// sweep covers timers lost to a process restart. The conditional update in
// ExpireOverdue guarantees a session expired here was not already answered.
type ExpirySweepJob struct {
	sessionRepo repository.SessionRepository
	notifier    ExpiryNotifier
	interval    time.Duration
	done        chan struct{}
}

func NewExpirySweepJob(
	sessionRepo repository.SessionRepository,
	notifier ExpiryNotifier,
	interval time.Duration,
) *ExpirySweepJob {
	return &ExpirySweepJob{
		sessionRepo: sessionRepo,
		notifier:    notifier,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

func (j *ExpirySweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("expiry sweep job started")
}

func (j *ExpirySweepJob) Stop() {
	close(j.done)
	log.Info().Msg("expiry sweep job stopped")
}

func (j *ExpirySweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *ExpirySweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := j.sessionRepo.ExpireOverdue(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep overdue sessions")
		return
	}

	for _, session := range expired {
		j.notifier.NotifyExpired(ctx, session.RequesterID)
	}

	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("expired overdue screen share requests")
	}
}
