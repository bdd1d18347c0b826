package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/widget-chat-backend/internal/observability"
)

// Sweeper periodically expires idle active sessions.
type Sweeper struct {
	Sessions *SessionService
	Interval time.Duration
}

// Sweep runs one expiry pass.
func (w *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := w.Sessions.ExpireIdle(ctx)
	if err != nil {
		return 0, err
	}
	observability.ObserveExpired(n)
	if n > 0 {
		log.Info().Int64("expired", n).Msg("idle sessions expired")
	}
	return n, nil
}

// Run sweeps every Interval until ctx is done. A zero interval returns
// immediately.
func (w *Sweeper) Run(ctx context.Context) error {
	if w.Interval <= 0 {
		return nil
	}
	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("session sweep failed")
			}
		}
	}
}
