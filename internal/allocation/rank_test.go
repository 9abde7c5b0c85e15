package allocation_test

import (
	"testing"
	"time"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/allocation"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// ledger builds eligible requests 1..n, one second apart.
func ledger(n int) []domain.BookingRequest {
	out := make([]domain.BookingRequest, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.BookingRequest{
			ID:          int64(i),
			UserID:      uuid.New(),
			RequestedAt: t0.Add(time.Duration(i) * time.Second),
			Eligible:    true,
		})
	}
	return out
}

func statuses(ranked []allocation.Ranked) []domain.RankedStatus {
	out := make([]domain.RankedStatus, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.Status)
	}
	return out
}

func TestClassify(t *testing.T) {
	bounded := domain.BookingOption{Capacity: 2, OverflowCapacity: 1}
	unlimited := domain.BookingOption{Capacity: 0, OverflowCapacity: 3}

	tests := []struct {
		name string
		opt  domain.BookingOption
		rank int
		want domain.RankedStatus
	}{
		{"No rank", bounded, 0, domain.StatusNotBooked},
		{"First seat", bounded, 1, domain.StatusBooked},
		{"Last seat", bounded, 2, domain.StatusBooked},
		{"Waiting list", bounded, 3, domain.StatusWaiting},
		{"Beyond waiting list", bounded, 4, domain.StatusOverCapacity},
		{"Unlimited", unlimited, 1000, domain.StatusBooked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, allocation.Classify(tt.opt, tt.rank))
		})
	}
}

func TestRank_CapacityInvariant(t *testing.T) {
	for capacity := 1; capacity <= 4; capacity++ {
		for overflow := 0; overflow <= 3; overflow++ {
			opt := domain.BookingOption{Capacity: capacity, OverflowCapacity: overflow}
			ranked := allocation.Rank(opt, ledger(10))
			occ := allocation.Occupy(opt, ranked)

			assert.LessOrEqual(t, occ.BookedCount, capacity)
			assert.LessOrEqual(t, occ.WaitingCount, overflow)
			assert.Equal(t, 10, occ.BookedCount+occ.WaitingCount+occ.OverCapacityCount)
		}
	}
}

func TestRank_Deterministic(t *testing.T) {
	opt := domain.BookingOption{Capacity: 2, OverflowCapacity: 2}
	l := ledger(6)

	// shuffled input, identical output
	shuffled := []domain.BookingRequest{l[4], l[1], l[5], l[0], l[3], l[2]}

	first := allocation.Rank(opt, l)
	second := allocation.Rank(opt, l)
	third := allocation.Rank(opt, shuffled)

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
}

func TestRank_TieBreakByID(t *testing.T) {
	opt := domain.BookingOption{Capacity: 1, OverflowCapacity: 1}
	a := domain.BookingRequest{ID: 7, UserID: uuid.New(), RequestedAt: t0, Eligible: true}
	b := domain.BookingRequest{ID: 3, UserID: uuid.New(), RequestedAt: t0, Eligible: true}

	ranked := allocation.Rank(opt, []domain.BookingRequest{a, b})
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(3), ranked[0].Request.ID)
	assert.Equal(t, domain.StatusBooked, ranked[0].Status)
	assert.Equal(t, int64(7), ranked[1].Request.ID)
	assert.Equal(t, domain.StatusWaiting, ranked[1].Status)
}

func TestRank_IneligibleOccupiesNoSlot(t *testing.T) {
	opt := domain.BookingOption{Capacity: 1, OverflowCapacity: 1}
	l := ledger(3)
	l[1].Eligible = false // B

	ranked := allocation.Rank(opt, l)

	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, domain.StatusBooked, ranked[0].Status)
	assert.Equal(t, 0, ranked[1].Rank)
	assert.Equal(t, domain.StatusNotBooked, ranked[1].Status)
	assert.Equal(t, 2, ranked[2].Rank)
	assert.Equal(t, domain.StatusWaiting, ranked[2].Status)
}

func TestRank_IneligibleSkip_CapacityTwo(t *testing.T) {
	// A rank 1, B ineligible, C rank 2: both booked.
	l := ledger(3)
	l[1].Eligible = false

	ranked := allocation.Rank(domain.BookingOption{Capacity: 2}, l)
	assert.Equal(t, []domain.RankedStatus{domain.StatusBooked, domain.StatusNotBooked, domain.StatusBooked}, statuses(ranked))
	assert.Equal(t, 2, ranked[2].Rank)
}

func TestRank_Unlimited(t *testing.T) {
	ranked := allocation.Rank(domain.BookingOption{Capacity: 0, OverflowCapacity: 1}, ledger(50))
	for _, r := range ranked {
		assert.Equal(t, domain.StatusBooked, r.Status)
	}
}

func TestRank_OverCapacityAfterCapacityReduction(t *testing.T) {
	ranked := allocation.Rank(domain.BookingOption{Capacity: 1, OverflowCapacity: 1}, ledger(4))
	assert.Equal(t, []domain.RankedStatus{
		domain.StatusBooked, domain.StatusWaiting, domain.StatusOverCapacity, domain.StatusOverCapacity,
	}, statuses(ranked))
}

func TestStatusOf(t *testing.T) {
	opt := domain.BookingOption{Capacity: 1}
	l := ledger(2)
	ranked := allocation.Rank(opt, l)

	got, ok := allocation.StatusOf(ranked, l[0].UserID)
	assert.True(t, ok)
	assert.Equal(t, domain.StatusBooked, got.Status)

	got, ok = allocation.StatusOf(ranked, uuid.New())
	assert.False(t, ok)
	assert.Equal(t, domain.StatusNotBooked, got.Status)
}

func TestAdmit(t *testing.T) {
	opt := domain.BookingOption{Capacity: 1, OverflowCapacity: 1}

	assert.NoError(t, allocation.Admit(opt, allocation.Rank(opt, ledger(0)), false))
	assert.NoError(t, allocation.Admit(opt, allocation.Rank(opt, ledger(1)), false))
	assert.ErrorIs(t, allocation.Admit(opt, allocation.Rank(opt, ledger(2)), false), domain.ErrOptionFull)
	assert.NoError(t, allocation.Admit(opt, allocation.Rank(opt, ledger(2)), true))

	unlimited := domain.BookingOption{}
	assert.NoError(t, allocation.Admit(unlimited, allocation.Rank(unlimited, ledger(100)), false))

	// ineligible requests do not count toward fullness
	l := ledger(2)
	l[0].Eligible = false
	assert.NoError(t, allocation.Admit(opt, allocation.Rank(opt, l), false))
}

func TestNextRequestedAt(t *testing.T) {
	l := ledger(3) // latest is t0+3s

	assert.Equal(t, t0.Add(10*time.Second), allocation.NextRequestedAt(l, t0.Add(10*time.Second)))
	assert.Equal(t, t0.Add(3*time.Second), allocation.NextRequestedAt(l, t0))
	assert.Equal(t, t0, allocation.NextRequestedAt(nil, t0))
}
