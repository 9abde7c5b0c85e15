// Package allocation decides who is booked, who waits and who gets promoted.
// Every function here is pure: callers load the ledger, resolve eligibility and
// hold the option lock; nothing in this package performs I/O.
package allocation

import (
	"cmp"
	"slices"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/google/uuid"
)

// Ranked is one ledger entry with its derived position.
// Rank is 1-based among eligible requests and 0 for ineligible ones.
type Ranked struct {
	Request domain.BookingRequest
	Rank    int
	Status  domain.RankedStatus
}

// Order returns a copy of reqs sorted by (RequestedAt, ID) ascending.
func Order(reqs []domain.BookingRequest) []domain.BookingRequest {
	out := slices.Clone(reqs)
	slices.SortStableFunc(out, func(a, b domain.BookingRequest) int {
		if c := a.RequestedAt.Compare(b.RequestedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Classify maps a 1-based rank to a status under opt.
func Classify(opt domain.BookingOption, rank int) domain.RankedStatus {
	switch {
	case rank <= 0:
		return domain.StatusNotBooked
	case opt.Unlimited():
		return domain.StatusBooked
	case rank <= opt.Capacity:
		return domain.StatusBooked
	case rank <= opt.Capacity+opt.OverflowCapacity:
		return domain.StatusWaiting
	default:
		return domain.StatusOverCapacity
	}
}

// Rank orders the ledger and ranks eligible requests 1, 2, 3...
// Ineligible requests keep their ledger slot but get rank 0 and StatusNotBooked.
func Rank(opt domain.BookingOption, ledger []domain.BookingRequest) []Ranked {
	ordered := Order(ledger)
	out := make([]Ranked, 0, len(ordered))

	next := 1
	for _, r := range ordered {
		if !r.Eligible {
			out = append(out, Ranked{Request: r, Status: domain.StatusNotBooked})
			continue
		}
		out = append(out, Ranked{Request: r, Rank: next, Status: Classify(opt, next)})
		next++
	}
	return out
}

// StatusOf returns the entry of userID, or a StatusNotBooked entry when the user
// has no request.
func StatusOf(ranked []Ranked, userID uuid.UUID) (Ranked, bool) {
	for _, r := range ranked {
		if r.Request.UserID == userID {
			return r, true
		}
	}
	return Ranked{Status: domain.StatusNotBooked}, false
}

// EligibleCount is the number of requests holding a rank.
func EligibleCount(ranked []Ranked) int {
	n := 0
	for _, r := range ranked {
		if r.Rank > 0 {
			n++
		}
	}
	return n
}

// Requests strips ranking back to the ledger.
func Requests(ranked []Ranked) []domain.BookingRequest {
	out := make([]domain.BookingRequest, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.Request)
	}
	return out
}

// WithStatus keeps the entries in status, preserving rank order.
func WithStatus(ranked []Ranked, status domain.RankedStatus) []Ranked {
	var out []Ranked
	for _, r := range ranked {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}
