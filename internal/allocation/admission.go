package allocation

import (
	"time"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
)

// Admit decides whether one more eligible request fits under opt.
// A bounded option refuses once capacity + overflow eligible requests exist, so
// a normal submission never produces StatusOverCapacity. allowOverbook skips the
// refusal for administrative bookings.
func Admit(opt domain.BookingOption, ranked []Ranked, allowOverbook bool) error {
	if opt.Unlimited() || allowOverbook {
		return nil
	}
	if EligibleCount(ranked) >= domain.TotalSeats(opt) {
		return domain.ErrOptionFull
	}
	return nil
}

// NextRequestedAt keeps timestamps monotonic per option so a new request always
// ranks after every existing one, even when the clock steps backwards.
func NextRequestedAt(ledger []domain.BookingRequest, now time.Time) time.Time {
	at := now
	for _, r := range ledger {
		if r.RequestedAt.After(at) {
			at = r.RequestedAt
		}
	}
	return at
}
