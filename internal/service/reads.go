package service

import (
	"context"
	"time"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/allocation"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/eligibility"
	"github.com/google/uuid"
)

type StatusView struct {
	OptionID    uuid.UUID
	UserID      uuid.UUID
	RequestID   int64
	RequestedAt *time.Time
	Rank        int
	Status      domain.RankedStatus
}

type RankedLedger struct {
	Option    domain.BookingOption
	Entries   []allocation.Ranked
	Occupancy allocation.Occupancy
}

func (l RankedLedger) Booked() []allocation.Ranked {
	return allocation.WithStatus(l.Entries, domain.StatusBooked)
}

func (l RankedLedger) Waiting() []allocation.Ranked {
	return allocation.WithStatus(l.Entries, domain.StatusWaiting)
}

// Reads are not serialized; they rank a consistent snapshot of the ledger.
func (s *BookingService) snapshot(ctx context.Context, optionID uuid.UUID) (domain.BookingOption, []allocation.Ranked, error) {
	opt, err := s.store.GetOption(ctx, optionID)
	if err != nil {
		return domain.BookingOption{}, nil, err
	}
	ledger, err := s.store.ListOrdered(ctx, optionID)
	if err != nil {
		return domain.BookingOption{}, nil, err
	}
	annotated, err := eligibility.Annotate(ctx, s.checker, optionID, ledger)
	if err != nil {
		return domain.BookingOption{}, nil, err
	}
	ranked := allocation.Rank(opt, annotated)
	s.alertOverCapacity(ctx, optionID, allocation.WithStatus(ranked, domain.StatusOverCapacity), causeRead)
	return opt, ranked, nil
}

// GetStatus classifies userID on the live ledger. A user without a request is
// StatusNotBooked.
func (s *BookingService) GetStatus(ctx context.Context, optionID, userID uuid.UUID) (StatusView, error) {
	_, ranked, err := s.snapshot(ctx, optionID)
	if err != nil {
		return StatusView{}, err
	}

	v := StatusView{OptionID: optionID, UserID: userID, Status: domain.StatusNotBooked}
	if r, ok := allocation.StatusOf(ranked, userID); ok {
		at := r.Request.RequestedAt
		v.RequestID = r.Request.ID
		v.RequestedAt = &at
		v.Rank = r.Rank
		v.Status = r.Status
	}
	return v, nil
}

func (s *BookingService) GetOccupancy(ctx context.Context, optionID uuid.UUID) (allocation.Occupancy, error) {
	opt, ranked, err := s.snapshot(ctx, optionID)
	if err != nil {
		return allocation.Occupancy{}, err
	}
	return allocation.Occupy(opt, ranked), nil
}

// ListRanked returns the whole ranked ledger, including ineligible entries.
func (s *BookingService) ListRanked(ctx context.Context, actor Actor, optionID uuid.UUID) (RankedLedger, error) {
	if !actor.Privileged() {
		return RankedLedger{}, domain.ErrForbidden
	}
	opt, ranked, err := s.snapshot(ctx, optionID)
	if err != nil {
		return RankedLedger{}, err
	}
	return RankedLedger{Option: opt, Entries: ranked, Occupancy: allocation.Occupy(opt, ranked)}, nil
}

// ListMyRequests pages the user's requests newest first with their live status.
func (s *BookingService) ListMyRequests(ctx context.Context, userID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]StatusView, *domain.KeysetCursor, error) {
	reqs, next, err := s.store.ListByUser(ctx, userID, limit, cursor)
	if err != nil {
		return nil, nil, err
	}

	byOption := map[uuid.UUID][]allocation.Ranked{}
	out := make([]StatusView, 0, len(reqs))
	for _, r := range reqs {
		ranked, ok := byOption[r.OptionID]
		if !ok {
			_, ranked, err = s.snapshot(ctx, r.OptionID)
			if err != nil {
				return nil, nil, err
			}
			byOption[r.OptionID] = ranked
		}

		at := r.RequestedAt
		v := StatusView{OptionID: r.OptionID, UserID: userID, RequestID: r.ID, RequestedAt: &at, Status: domain.StatusNotBooked}
		if e, ok := allocation.StatusOf(ranked, userID); ok {
			v.Rank, v.Status = e.Rank, e.Status
		}
		out = append(out, v)
	}
	return out, next, nil
}
