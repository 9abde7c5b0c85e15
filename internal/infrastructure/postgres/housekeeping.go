package postgres

import (
	"context"
	"time"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/pkg/logger"
)

// StartHousekeeping periodically trims sent outbox rows and dedupe markers
// older than retention so neither table grows without bound.
func (r *Repository) StartHousekeeping(ctx context.Context, retention, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		log := logger.Logger.With().Str("component", "housekeeping").Logger()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// Run once immediately on startup
		r.sweep(ctx, retention)

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stopped")
				return
			case <-ticker.C:
				r.sweep(ctx, retention)
			}
		}
	}()
}

func (r *Repository) sweep(ctx context.Context, retention time.Duration) {
	outbox, processed, err := r.Sweep(ctx, time.Now().Add(-retention))
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("housekeeping sweep failed")
		return
	}
	if outbox > 0 || processed > 0 {
		logger.Logger.Info().
			Int64("outbox_deleted", outbox).
			Int64("processed_deleted", processed).
			Msg("housekeeping sweep done")
	}
}

// Sweep deletes sent outbox rows and processed_messages markers older than before.
// Pending and dead rows are kept.
func (r *Repository) Sweep(ctx context.Context, before time.Time) (outbox, processed int64, err error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM outbox
		WHERE status = 'sent'
		  AND occurred_at < $1
	`, before)
	if err != nil {
		return 0, 0, err
	}
	outbox = tag.RowsAffected()

	tag, err = r.pool.Exec(ctx, `
		DELETE FROM processed_messages
		WHERE processed_at < $1
	`, before)
	if err != nil {
		return outbox, 0, err
	}
	return outbox, tag.RowsAffected(), nil
}
