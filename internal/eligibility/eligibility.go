// Package eligibility adapts the external "may this user book this option"
// capability check into the boolean the ranking consumes.
package eligibility

import (
	"context"
	"fmt"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/google/uuid"
)

type Checker interface {
	IsEligible(ctx context.Context, optionID, userID uuid.UUID) (bool, error)
}

// BatchChecker is optional; Annotate uses it when the checker provides it.
type BatchChecker interface {
	EligibleSet(ctx context.Context, optionID uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

// Invalidator is implemented by checkers that cache answers.
type Invalidator interface {
	Invalidate(ctx context.Context, optionID, userID uuid.UUID) error
}

// Writer records capability changes outside an option transaction, for options
// that have no ledger yet. Implemented by the capability stores.
type Writer interface {
	Revoke(ctx context.Context, optionID, userID uuid.UUID, reason string) error
	Restore(ctx context.Context, optionID, userID uuid.UUID) error
}

type Func func(ctx context.Context, optionID, userID uuid.UUID) (bool, error)

func (f Func) IsEligible(ctx context.Context, optionID, userID uuid.UUID) (bool, error) {
	return f(ctx, optionID, userID)
}

// AllowAll grants every user. Used when no capability store is configured.
var AllowAll Checker = Func(func(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return true, nil
})

// Annotate returns a copy of ledger with Eligible resolved for every request.
func Annotate(ctx context.Context, c Checker, optionID uuid.UUID, ledger []domain.BookingRequest) ([]domain.BookingRequest, error) {
	out := make([]domain.BookingRequest, len(ledger))
	copy(out, ledger)
	if len(out) == 0 {
		return out, nil
	}

	if bc, ok := c.(BatchChecker); ok {
		ids := make([]uuid.UUID, 0, len(out))
		for _, r := range out {
			ids = append(ids, r.UserID)
		}
		set, err := bc.EligibleSet(ctx, optionID, ids)
		if err != nil {
			return nil, fmt.Errorf("eligibility batch: %w", err)
		}
		for i := range out {
			out[i].Eligible = set[out[i].UserID]
		}
		return out, nil
	}

	for i := range out {
		ok, err := c.IsEligible(ctx, optionID, out[i].UserID)
		if err != nil {
			return nil, fmt.Errorf("eligibility for user %s: %w", out[i].UserID, err)
		}
		out[i].Eligible = ok
	}
	return out, nil
}
