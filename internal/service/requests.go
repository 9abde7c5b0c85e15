package service

import (
	"context"
	"errors"
	"slices"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/allocation"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/metrics"
	"github.com/google/uuid"
)

type SubmitResult struct {
	Request domain.BookingRequest
	Rank    int
	Status  domain.RankedStatus
}

type BookResult struct {
	UserID uuid.UUID
	SubmitResult
	Err error
}

type CancelResult struct {
	Removed    domain.BookingRequest
	PrevStatus domain.RankedStatus
	// Promoted is nil when nobody moved up.
	Promoted *allocation.Ranked
}

type BatchCancelResult struct {
	Canceled []CancelResult
	Missing  []uuid.UUID
}

// SubmitRequest appends userID to the option's ledger and reports where the
// request landed: Booked or Waiting. A full bounded option is refused with
// ErrOptionFull, so a new submission never lands over capacity.
func (s *BookingService) SubmitRequest(ctx context.Context, optionID, userID uuid.UUID) (SubmitResult, error) {
	var res SubmitResult
	err := s.mutate(ctx, optionID, func(tx domain.LedgerTx) error {
		opt := tx.Option()
		now := s.clock.Now()
		if domain.IsClosed(opt, now) {
			return domain.ErrBookingClosed
		}

		annotated, ranked, err := s.rank(ctx, tx)
		if err != nil {
			return err
		}
		if _, ok := allocation.StatusOf(ranked, userID); ok {
			return domain.ErrDuplicateRequest
		}

		ok, err := lockedEligibility{tx}.IsEligible(ctx, optionID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotEligible
		}
		if err := allocation.Admit(opt, ranked, false); err != nil {
			return err
		}

		req, err := tx.Append(ctx, userID, allocation.NextRequestedAt(annotated, now))
		if err != nil {
			return err
		}
		req.Eligible = true

		mine, _ := allocation.StatusOf(allocation.Rank(opt, append(annotated, req)), userID)
		res = SubmitResult{Request: req, Rank: mine.Rank, Status: mine.Status}
		return tx.Enqueue(ctx, bookingEvent(ctx, event.RKRequested, mine, "", userID, ""))
	})
	metrics.RecordRequest("submit", outcome(err))
	if err != nil {
		return SubmitResult{}, err
	}

	s.audit.RequestSubmitted(ctx, optionID, userID, userID, res.Request.ID, res.Status)
	return res, nil
}

// BookForUsers books several users in one serialized transaction on behalf of a
// privileged actor. Per-user failures are reported in the result and do not
// abort the batch. allowOverbook skips the capacity refusal; entries that end
// up over capacity raise alerts.
func (s *BookingService) BookForUsers(ctx context.Context, actor Actor, optionID uuid.UUID, userIDs []uuid.UUID, allowOverbook bool) ([]BookResult, error) {
	if !actor.Privileged() {
		return nil, domain.ErrForbidden
	}

	var (
		results []BookResult
		over    []allocation.Ranked
	)
	err := s.mutate(ctx, optionID, func(tx domain.LedgerTx) error {
		results, over = results[:0], over[:0]

		opt := tx.Option()
		now := s.clock.Now()
		annotated, ranked, err := s.rank(ctx, tx)
		if err != nil {
			return err
		}

		seen := map[uuid.UUID]bool{}
		for _, userID := range userIDs {
			if seen[userID] {
				continue
			}
			seen[userID] = true

			if _, ok := allocation.StatusOf(ranked, userID); ok {
				results = append(results, BookResult{UserID: userID, Err: domain.ErrDuplicateRequest})
				continue
			}
			ok, err := lockedEligibility{tx}.IsEligible(ctx, optionID, userID)
			if err != nil {
				return err
			}
			if !ok {
				results = append(results, BookResult{UserID: userID, Err: domain.ErrNotEligible})
				continue
			}
			if err := allocation.Admit(opt, ranked, allowOverbook); err != nil {
				results = append(results, BookResult{UserID: userID, Err: err})
				continue
			}

			req, err := tx.Append(ctx, userID, allocation.NextRequestedAt(annotated, now))
			if err != nil {
				return err
			}
			req.Eligible = true
			annotated = append(annotated, req)
			ranked = allocation.Rank(opt, annotated)

			mine, _ := allocation.StatusOf(ranked, userID)
			results = append(results, BookResult{
				UserID:       userID,
				SubmitResult: SubmitResult{Request: req, Rank: mine.Rank, Status: mine.Status},
			})
			if err := tx.Enqueue(ctx, bookingEvent(ctx, event.RKRequested, mine, "", actor.UserID, "")); err != nil {
				return err
			}
			if mine.Status == domain.StatusOverCapacity {
				over = append(over, mine)
				if err := tx.Enqueue(ctx, bookingEvent(ctx, event.RKOverCapacity, mine, "", actor.UserID, causeOverbook)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		metrics.RecordRequest("book_for", outcome(err))
		return nil, err
	}

	for _, r := range results {
		metrics.RecordRequest("book_for", outcome(r.Err))
		if r.Err == nil {
			s.audit.RequestSubmitted(ctx, optionID, r.UserID, actor.UserID, r.Request.ID, r.Status)
		}
	}
	s.alertOverCapacity(ctx, optionID, over, causeOverbook)
	return results, nil
}

// CancelRequest removes userID's request. Removing a Booked request on a bounded
// option promotes the first waiting request, if any.
func (s *BookingService) CancelRequest(ctx context.Context, actor Actor, optionID, userID uuid.UUID) (CancelResult, error) {
	if actor.UserID != userID && !actor.Privileged() {
		return CancelResult{}, domain.ErrForbidden
	}

	var res CancelResult
	err := s.mutate(ctx, optionID, func(tx domain.LedgerTx) error {
		_, ranked, err := s.rank(ctx, tx)
		if err != nil {
			return err
		}
		res, _, err = cancelOne(ctx, tx, ranked, userID, actor.UserID)
		return err
	})
	metrics.RecordRequest("cancel", outcome(err))
	if err != nil {
		return CancelResult{}, err
	}

	s.reportCancel(ctx, optionID, actor, res)
	return res, nil
}

// CancelRequests removes several users' requests in one serialized transaction,
// resolving the promotion after every single removal.
func (s *BookingService) CancelRequests(ctx context.Context, actor Actor, optionID uuid.UUID, userIDs []uuid.UUID) (BatchCancelResult, error) {
	if !actor.Privileged() {
		return BatchCancelResult{}, domain.ErrForbidden
	}

	var res BatchCancelResult
	err := s.mutate(ctx, optionID, func(tx domain.LedgerTx) error {
		res = BatchCancelResult{}

		_, ranked, err := s.rank(ctx, tx)
		if err != nil {
			return err
		}
		seen := map[uuid.UUID]bool{}
		for _, userID := range userIDs {
			if seen[userID] {
				continue
			}
			seen[userID] = true

			one, next, err := cancelOne(ctx, tx, ranked, userID, actor.UserID)
			if errors.Is(err, domain.ErrRequestNotFound) {
				res.Missing = append(res.Missing, userID)
				continue
			}
			if err != nil {
				return err
			}
			res.Canceled = append(res.Canceled, one)
			ranked = next
		}
		return nil
	})
	metrics.RecordRequest("cancel_batch", outcome(err))
	if err != nil {
		return BatchCancelResult{}, err
	}

	for _, c := range res.Canceled {
		s.reportCancel(ctx, optionID, actor, c)
	}
	return res, nil
}

// cancelOne removes userID from the ranked ledger and returns the new ranking.
func cancelOne(ctx context.Context, tx domain.LedgerTx, ranked []allocation.Ranked, userID, actorID uuid.UUID) (CancelResult, []allocation.Ranked, error) {
	opt := tx.Option()
	entry, ok := allocation.StatusOf(ranked, userID)
	if !ok {
		return CancelResult{}, nil, domain.ErrRequestNotFound
	}

	removed, err := tx.Remove(ctx, entry.Request.ID)
	if err != nil {
		return CancelResult{}, nil, err
	}
	removed.Eligible = entry.Request.Eligible

	res := CancelResult{
		Removed:    removed,
		PrevStatus: entry.Status,
		Promoted:   allocation.ResolvePromotion(opt, ranked, removed.ID),
	}

	gone := entry
	gone.Rank, gone.Status = 0, domain.StatusNotBooked
	if err := tx.Enqueue(ctx, bookingEvent(ctx, event.RKCanceled, gone, entry.Status, actorID, causeCancel)); err != nil {
		return CancelResult{}, nil, err
	}
	if res.Promoted != nil {
		prev, _ := allocation.StatusOf(ranked, res.Promoted.Request.UserID)
		if err := tx.Enqueue(ctx, bookingEvent(ctx, event.RKPromoted, *res.Promoted, prev.Status, uuid.Nil, causeCancel)); err != nil {
			return CancelResult{}, nil, err
		}
	}

	remaining := slices.DeleteFunc(allocation.Requests(ranked), func(r domain.BookingRequest) bool {
		return r.ID == removed.ID
	})
	return res, allocation.Rank(opt, remaining), nil
}

func (s *BookingService) reportCancel(ctx context.Context, optionID uuid.UUID, actor Actor, res CancelResult) {
	s.audit.RequestCanceled(ctx, optionID, res.Removed.UserID, actor.UserID, res.PrevStatus)
	if res.Promoted != nil {
		s.reportPromotions(ctx, optionID, []allocation.Ranked{*res.Promoted}, causeCancel)
	}
}
