package service

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/allocation"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/audit"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/eligibility"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/metrics"
	pkgctx "github.com/baechuer/real-time-ressys/services/booking-service/internal/pkg/context"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/pkg/logger"
	"github.com/google/uuid"
)

const (
	causeCancel       = "cancel"
	causeCapacity     = "capacity_changed"
	causeEligibility  = "eligibility_changed"
	causeOverbook     = "admin_overbook"
	causeRead         = "read"
	causeOptionDelete = "option_deleted"
)

const RoleSystem = "system"

// Actor is the caller of a mutation. System is used by the message consumer.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

var System = Actor{Role: RoleSystem}

func isPrivileged(role string) bool {
	r := strings.ToLower(strings.TrimSpace(role))
	return r == "admin" || r == "manager" || r == "teacher" || r == RoleSystem
}

func (a Actor) Privileged() bool { return isPrivileged(a.Role) }

type BookingService struct {
	store   domain.Store
	checker eligibility.Checker
	clock   domain.Clock
	audit   *audit.Logger

	maxRetries  int
	backoffBase time.Duration
}

type Option func(*BookingService)

func WithClock(c domain.Clock) Option { return func(s *BookingService) { s.clock = c } }

func WithAudit(a *audit.Logger) Option { return func(s *BookingService) { s.audit = a } }

func WithRetry(maxRetries int, backoffBase time.Duration) Option {
	return func(s *BookingService) {
		s.maxRetries = maxRetries
		s.backoffBase = backoffBase
	}
}

func NewBookingService(store domain.Store, checker eligibility.Checker, opts ...Option) *BookingService {
	s := &BookingService{
		store:       store,
		checker:     checker,
		clock:       domain.SystemClock{},
		maxRetries:  3,
		backoffBase: 20 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	if s.checker == nil {
		s.checker = eligibility.AllowAll
		if c, ok := store.(eligibility.Checker); ok {
			s.checker = c
		}
	}
	if s.audit == nil {
		s.audit = audit.New(logger.Logger)
	}
	if s.maxRetries < 0 {
		s.maxRetries = 0
	}
	return s
}

// mutate runs fn under the option lock and retries lost races.
// fn may run more than once, so it must only write through tx.
func (s *BookingService) mutate(ctx context.Context, optionID uuid.UUID, fn func(tx domain.LedgerTx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.store.WithOptionLock(ctx, optionID, fn)
		if !errors.Is(err, domain.ErrConflict) || attempt >= s.maxRetries {
			return err
		}

		metrics.LockRetriesTotal.Inc()
		logger.WithCtx(ctx).Debug().
			Str("option_id", optionID.String()).
			Int("attempt", attempt+1).
			Msg("option lock conflict; retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff(attempt)):
		}
	}
}

// backoff: linear with jitter
func (s *BookingService) backoff(attempt int) time.Duration {
	if s.backoffBase <= 0 {
		return 0
	}
	d := s.backoffBase * time.Duration(attempt+1)
	return d + time.Duration(rand.Int63n(int64(s.backoffBase)))
}

// lockedEligibility answers capability checks from the option's transaction.
// The injected checker (and its cache) only serves unlocked reads.
type lockedEligibility struct{ tx domain.LedgerTx }

func (l lockedEligibility) IsEligible(ctx context.Context, _ uuid.UUID, userID uuid.UUID) (bool, error) {
	set, err := l.tx.Eligible(ctx, []uuid.UUID{userID})
	if err != nil {
		return false, err
	}
	return set[userID], nil
}

func (l lockedEligibility) EligibleSet(ctx context.Context, _ uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	return l.tx.Eligible(ctx, userIDs)
}

// rank resolves eligibility for the ledger inside a transaction.
func (s *BookingService) rank(ctx context.Context, tx domain.LedgerTx) ([]domain.BookingRequest, []allocation.Ranked, error) {
	ledger, err := tx.ListOrdered(ctx)
	if err != nil {
		return nil, nil, err
	}
	annotated, err := eligibility.Annotate(ctx, lockedEligibility{tx}, tx.Option().ID, ledger)
	if err != nil {
		return nil, nil, err
	}
	return annotated, allocation.Rank(tx.Option(), annotated), nil
}

func bookingEvent(ctx context.Context, rk string, r allocation.Ranked, prev domain.RankedStatus, actorID uuid.UUID, cause string) domain.OutboxEvent {
	p := event.BookingPayload{
		OptionID:   r.Request.OptionID.String(),
		UserID:     r.Request.UserID.String(),
		RequestID:  r.Request.ID,
		Status:     string(r.Status),
		PrevStatus: string(prev),
		Rank:       r.Rank,
		Cause:      cause,
	}
	if actorID != uuid.Nil {
		p.ActorID = actorID.String()
	}
	return domain.OutboxEvent{RoutingKey: rk, TraceID: pkgctx.GetTraceID(ctx), Payload: p}
}

// enqueueAll announces entries; each event carries the status the entry had in before.
func enqueueAll(ctx context.Context, tx domain.LedgerTx, rk string, entries, before []allocation.Ranked, cause string) error {
	for _, r := range entries {
		prev, _ := allocation.StatusOf(before, r.Request.UserID)
		if err := tx.Enqueue(ctx, bookingEvent(ctx, rk, r, prev.Status, uuid.Nil, cause)); err != nil {
			return err
		}
	}
	return nil
}

// invalidate drops a cached capability after the change committed.
func (s *BookingService) invalidate(ctx context.Context, optionID, userID uuid.UUID) {
	if inv, ok := s.checker.(eligibility.Invalidator); ok {
		if err := inv.Invalidate(ctx, optionID, userID); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).Str("option_id", optionID.String()).Msg("eligibility cache invalidation failed")
		}
	}
}

func (s *BookingService) reportPromotions(ctx context.Context, optionID uuid.UUID, promoted []allocation.Ranked, cause string) {
	for _, p := range promoted {
		s.audit.Promoted(ctx, optionID, p.Request.UserID, cause)
	}
	metrics.RecordPromotions(cause, len(promoted))
}

func (s *BookingService) alertOverCapacity(ctx context.Context, optionID uuid.UUID, over []allocation.Ranked, cause string) {
	for _, r := range over {
		s.audit.OverCapacity(ctx, optionID, r.Request.UserID, r.Rank, cause)
	}
	metrics.RecordOverCapacity(len(over))
}

// outcome is the metrics label for a mutation result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrOptionFull):
		return "full"
	case errors.Is(err, domain.ErrBookingClosed):
		return "closed"
	case errors.Is(err, domain.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrOptionNotFound), errors.Is(err, domain.ErrRequestNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
