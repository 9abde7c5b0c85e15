package audit

import (
	"context"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	pkgctx "github.com/baechuer/real-time-ressys/services/booking-service/internal/pkg/context"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger provides structured audit logging for business events
type Logger struct {
	log zerolog.Logger
}

// New creates a new audit logger
func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

// RequestSubmitted logs a new ledger entry and the status it landed in
func (l *Logger) RequestSubmitted(ctx context.Context, optionID, userID, actorID uuid.UUID, requestID int64, status domain.RankedStatus) {
	l.log.Info().
		Str("action", "request_submitted").
		Str("option_id", optionID.String()).
		Str("user_id", userID.String()).
		Str("actor_user_id", actorID.String()).
		Int64("request_id", requestID).
		Str("status", string(status)).
		Str("trace_id", getTraceID(ctx)).
		Msg("Booking request submitted")
}

// RequestCanceled logs a removal from the ledger
func (l *Logger) RequestCanceled(ctx context.Context, optionID, userID, actorID uuid.UUID, prev domain.RankedStatus) {
	l.log.Info().
		Str("action", "request_canceled").
		Str("option_id", optionID.String()).
		Str("user_id", userID.String()).
		Str("actor_user_id", actorID.String()).
		Str("prev_status", string(prev)).
		Str("trace_id", getTraceID(ctx)).
		Msg("Booking request canceled")
}

// Promoted logs when a waiting request becomes booked
func (l *Logger) Promoted(ctx context.Context, optionID, userID uuid.UUID, cause string) {
	l.log.Info().
		Str("action", "promoted").
		Str("option_id", optionID.String()).
		Str("user_id", userID.String()).
		Str("cause", cause).
		Str("trace_id", getTraceID(ctx)).
		Msg("User promoted from waiting list")
}

// OverCapacity flags a request that no longer fits capacity + overflow.
func (l *Logger) OverCapacity(ctx context.Context, optionID, userID uuid.UUID, rank int, cause string) {
	l.log.Error().
		Str("action", "over_capacity").
		Str("option_id", optionID.String()).
		Str("user_id", userID.String()).
		Int("rank", rank).
		Str("cause", cause).
		Str("trace_id", getTraceID(ctx)).
		Msg("Booking request is over capacity, contact an administrator")
}

func (l *Logger) OptionUpserted(ctx context.Context, opt domain.BookingOption, created bool) {
	ev := l.log.Info().
		Str("action", "option_upserted").
		Str("option_id", opt.ID.String()).
		Int("capacity", opt.Capacity).
		Int("overflow_capacity", opt.OverflowCapacity).
		Bool("created", created)
	if opt.ClosingTime != nil {
		ev = ev.Time("closing_time", *opt.ClosingTime)
	}
	ev.Str("trace_id", getTraceID(ctx)).Msg("Booking option upserted")
}

func (l *Logger) OptionDeleted(ctx context.Context, optionID uuid.UUID, dropped int) {
	l.log.Warn().
		Str("action", "option_deleted").
		Str("option_id", optionID.String()).
		Int("dropped_requests", dropped).
		Str("trace_id", getTraceID(ctx)).
		Msg("Booking option deleted")
}

// EligibilityChanged logs a capability revoke or restore
func (l *Logger) EligibilityChanged(ctx context.Context, optionID, userID uuid.UUID, eligible bool, reason string) {
	l.log.Info().
		Str("action", "eligibility_changed").
		Str("option_id", optionID.String()).
		Str("user_id", userID.String()).
		Bool("eligible", eligible).
		Str("reason", reason).
		Str("trace_id", getTraceID(ctx)).
		Msg("Booking eligibility changed")
}

// OutboxMessageDead logs when an outbox message is moved to dead status
func (l *Logger) OutboxMessageDead(ctx context.Context, messageID, routingKey string, retries int) {
	l.log.Error().
		Str("action", "outbox_dead").
		Str("message_id", messageID).
		Str("routing_key", routingKey).
		Int("retries", retries).
		Msg("Outbox message moved to dead status")
}

// getTraceID extracts trace ID from context if available
func getTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return pkgctx.GetTraceID(ctx)
}
