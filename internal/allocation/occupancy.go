package allocation

import (
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
)

// UnlimitedSeats is reported as AvailableSeats for options without a capacity.
const UnlimitedSeats = -1

type Occupancy struct {
	Capacity         int  `json:"capacity"`
	OverflowCapacity int  `json:"overflow_capacity"`
	Unlimited        bool `json:"unlimited"`

	BookedCount       int `json:"booked_count"`
	WaitingCount      int `json:"waiting_count"`
	OverCapacityCount int `json:"over_capacity_count"`

	AvailableSeats        int `json:"available_seats"`
	AvailableWaitingSeats int `json:"available_waiting_seats"`
}

func Occupy(opt domain.BookingOption, ranked []Ranked) Occupancy {
	o := Occupancy{
		Capacity:         opt.Capacity,
		OverflowCapacity: opt.OverflowCapacity,
		Unlimited:        opt.Unlimited(),
	}
	for _, r := range ranked {
		switch r.Status {
		case domain.StatusBooked:
			o.BookedCount++
		case domain.StatusWaiting:
			o.WaitingCount++
		case domain.StatusOverCapacity:
			o.OverCapacityCount++
		}
	}

	if o.Unlimited {
		o.AvailableSeats = UnlimitedSeats
		return o
	}
	o.AvailableSeats = max(0, opt.Capacity-o.BookedCount)
	o.AvailableWaitingSeats = max(0, opt.OverflowCapacity-o.WaitingCount)
	return o
}
