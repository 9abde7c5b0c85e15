package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/allocation"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/eligibility"
	"github.com/google/uuid"
)

// StatusChange lists requests whose classification moved because of an option
// or eligibility change. Nothing is stored; both sides are recomputed.
type StatusChange struct {
	Promoted     []allocation.Ranked
	OverCapacity []allocation.Ranked
}

type OptionChange struct {
	Option  domain.BookingOption
	Created bool
	StatusChange
}

// diff enqueues the events for a before/after ranking and returns the change.
func diff(ctx context.Context, tx domain.LedgerTx, before, after []allocation.Ranked, cause string) (StatusChange, error) {
	ch := StatusChange{
		Promoted:     allocation.Promotions(before, after),
		OverCapacity: allocation.NewlyOverCapacity(before, after),
	}
	if err := enqueueAll(ctx, tx, event.RKPromoted, ch.Promoted, before, cause); err != nil {
		return StatusChange{}, err
	}
	if err := enqueueAll(ctx, tx, event.RKOverCapacity, ch.OverCapacity, before, cause); err != nil {
		return StatusChange{}, err
	}
	return ch, nil
}

func (s *BookingService) reportChange(ctx context.Context, optionID uuid.UUID, ch StatusChange, cause string) {
	s.reportPromotions(ctx, optionID, ch.Promoted, cause)
	s.alertOverCapacity(ctx, optionID, ch.OverCapacity, cause)
}

// UpsertOption creates the option or changes its settings. A capacity change
// never rewrites stored data: statuses are recomputed and the requests that
// moved into Booked are announced as promotions.
func (s *BookingService) UpsertOption(ctx context.Context, actor Actor, opt domain.BookingOption) (OptionChange, error) {
	if !actor.Privileged() {
		return OptionChange{}, domain.ErrForbidden
	}
	if opt.ID == uuid.Nil {
		return OptionChange{}, fmt.Errorf("%w: missing id", domain.ErrInvalidOption)
	}
	if err := domain.ValidateOption(opt); err != nil {
		return OptionChange{}, err
	}

	created, err := s.store.CreateOption(ctx, opt)
	if err != nil {
		return OptionChange{}, err
	}
	if created {
		s.audit.OptionUpserted(ctx, opt, true)
		return OptionChange{Option: opt, Created: true}, nil
	}

	var res OptionChange
	err = s.mutate(ctx, opt.ID, func(tx domain.LedgerTx) error {
		annotated, before, err := s.rank(ctx, tx)
		if err != nil {
			return err
		}
		if err := tx.UpdateOption(ctx, opt); err != nil {
			return err
		}
		updated := tx.Option()
		ch, err := diff(ctx, tx, before, allocation.Rank(updated, annotated), causeCapacity)
		if err != nil {
			return err
		}
		res = OptionChange{Option: updated, StatusChange: ch}
		return nil
	})
	if err != nil {
		return OptionChange{}, err
	}

	s.audit.OptionUpserted(ctx, res.Option, false)
	s.reportChange(ctx, opt.ID, res.StatusChange, causeCapacity)
	return res, nil
}

// DeleteOption drops the option together with its ledger. Every removed user
// gets a booking.canceled event.
func (s *BookingService) DeleteOption(ctx context.Context, actor Actor, optionID uuid.UUID) ([]domain.BookingRequest, error) {
	if !actor.Privileged() {
		return nil, domain.ErrForbidden
	}

	var removed []domain.BookingRequest
	err := s.mutate(ctx, optionID, func(tx domain.LedgerTx) error {
		_, ranked, err := s.rank(ctx, tx)
		if err != nil {
			return err
		}
		if removed, err = tx.DeleteOption(ctx); err != nil {
			return err
		}
		for _, r := range ranked {
			gone := r
			gone.Rank, gone.Status = 0, domain.StatusNotBooked
			if err := tx.Enqueue(ctx, bookingEvent(ctx, event.RKCanceled, gone, r.Status, actor.UserID, causeOptionDelete)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.OptionDeleted(ctx, optionID, len(removed))
	return removed, nil
}

// ChangeEligibility revokes or restores userID's capability on the option and
// announces the status changes it causes. The capability write, the re-ranking
// and the events share one critical section, so a redelivered change either
// finds everything committed or nothing.
func (s *BookingService) ChangeEligibility(ctx context.Context, optionID, userID uuid.UUID, eligible bool, reason string) (StatusChange, error) {
	var res StatusChange
	err := s.mutate(ctx, optionID, func(tx domain.LedgerTx) error {
		res = StatusChange{}

		annotated, before, err := s.rank(ctx, tx)
		if err != nil {
			return err
		}
		if err := tx.SetEligibility(ctx, userID, eligible, reason); err != nil {
			return err
		}

		i := slices.IndexFunc(annotated, func(r domain.BookingRequest) bool { return r.UserID == userID })
		if i < 0 || annotated[i].Eligible == eligible {
			return nil
		}
		annotated[i].Eligible = eligible
		res, err = diff(ctx, tx, before, allocation.Rank(tx.Option(), annotated), causeEligibility)
		return err
	})
	if errors.Is(err, domain.ErrOptionNotFound) {
		// capability recorded ahead of the option snapshot; no ledger to re-rank
		err = s.recordEligibility(ctx, optionID, userID, eligible, reason)
	}
	if err != nil {
		return StatusChange{}, err
	}

	s.invalidate(ctx, optionID, userID)
	s.audit.EligibilityChanged(ctx, optionID, userID, eligible, reason)
	s.reportChange(ctx, optionID, res, causeEligibility)
	return res, nil
}

func (s *BookingService) recordEligibility(ctx context.Context, optionID, userID uuid.UUID, eligible bool, reason string) error {
	w, ok := s.store.(eligibility.Writer)
	if !ok {
		return domain.ErrOptionNotFound
	}
	if eligible {
		return w.Restore(ctx, optionID, userID)
	}
	return w.Revoke(ctx, optionID, userID, reason)
}
