package domain

import (
	"fmt"
	"time"
)

// Option policy:
// - capacity >= 0, 0 means unlimited and the waiting list is ignored
// - overflow capacity >= 0
// - a zero closing time is treated as "no deadline"
func ValidateOption(o BookingOption) error {
	if o.Capacity < 0 {
		return fmt.Errorf("%w: capacity must be >= 0", ErrInvalidOption)
	}
	if o.OverflowCapacity < 0 {
		return fmt.Errorf("%w: overflow capacity must be >= 0", ErrInvalidOption)
	}
	return nil
}

// IsClosed reports whether new requests are refused at now.
func IsClosed(o BookingOption, now time.Time) bool {
	if o.ClosingTime == nil || o.ClosingTime.IsZero() {
		return false
	}
	return now.After(*o.ClosingTime)
}

// TotalSeats is capacity plus waiting list. It is meaningless for unlimited options.
func TotalSeats(o BookingOption) int {
	return o.Capacity + o.OverflowCapacity
}

// ClampLimit bounds page sizes for keyset listings.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
