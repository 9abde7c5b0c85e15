package allocation

import (
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
)

// ResolvePromotion answers "who moves up" after removedID leaves the ledger.
//
// before is the ranking taken while removedID was still present. Only the removal
// of a Booked request on a bounded option can promote anyone: the remaining
// ledger is re-ranked and the entry now holding rank == capacity (formerly
// capacity+1) is returned with its new status. nil means nobody moves up, which
// is a normal outcome.
func ResolvePromotion(opt domain.BookingOption, before []Ranked, removedID int64) *Ranked {
	if opt.Unlimited() {
		return nil
	}

	var (
		removed   *Ranked
		remaining = make([]domain.BookingRequest, 0, len(before))
	)
	for i := range before {
		if before[i].Request.ID == removedID {
			removed = &before[i]
			continue
		}
		remaining = append(remaining, before[i].Request)
	}
	if removed == nil || removed.Status != domain.StatusBooked {
		return nil
	}

	for _, r := range Rank(opt, remaining) {
		if r.Rank != opt.Capacity {
			continue
		}
		if prev, ok := findRequest(before, r.Request.ID); ok && prev.Status == domain.StatusBooked {
			return nil
		}
		promoted := r
		return &promoted
	}
	return nil
}

// Promotions lists entries that are Booked in after but were not Booked in before.
// It covers changes that are not a single removal: capacity edits and
// eligibility changes.
func Promotions(before, after []Ranked) []Ranked {
	var out []Ranked
	for _, r := range after {
		if r.Status != domain.StatusBooked {
			continue
		}
		prev, ok := findRequest(before, r.Request.ID)
		if !ok {
			// an append, not a promotion
			continue
		}
		if prev.Status == domain.StatusBooked {
			continue
		}
		out = append(out, r)
	}
	return out
}

// NewlyOverCapacity lists entries that are over capacity in after but were not in
// before.
func NewlyOverCapacity(before, after []Ranked) []Ranked {
	var out []Ranked
	for _, r := range after {
		if r.Status != domain.StatusOverCapacity {
			continue
		}
		if prev, ok := findRequest(before, r.Request.ID); ok && prev.Status == domain.StatusOverCapacity {
			continue
		}
		out = append(out, r)
	}
	return out
}

func findRequest(ranked []Ranked, requestID int64) (Ranked, bool) {
	for _, r := range ranked {
		if r.Request.ID == requestID {
			return r, true
		}
	}
	return Ranked{}, false
}
