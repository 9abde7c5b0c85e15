package allocation_test

import (
	"testing"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/allocation"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func without(l []domain.BookingRequest, id int64) []domain.BookingRequest {
	var out []domain.BookingRequest
	for _, r := range l {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

func TestResolvePromotion_FIFO(t *testing.T) {
	// A, B booked; C, D waiting. Cancelling A promotes C only.
	opt := domain.BookingOption{Capacity: 2, OverflowCapacity: 2}
	l := ledger(4)
	a, b, c, d := l[0], l[1], l[2], l[3]

	before := allocation.Rank(opt, l)
	promoted := allocation.ResolvePromotion(opt, before, a.ID)

	require.NotNil(t, promoted)
	assert.Equal(t, c.UserID, promoted.Request.UserID)
	assert.Equal(t, domain.StatusBooked, promoted.Status)
	assert.Equal(t, 2, promoted.Rank)

	after := allocation.Rank(opt, without(l, a.ID))
	got, _ := allocation.StatusOf(after, b.UserID)
	assert.Equal(t, domain.StatusBooked, got.Status)
	got, _ = allocation.StatusOf(after, d.UserID)
	assert.Equal(t, domain.StatusWaiting, got.Status)
}

func TestResolvePromotion_NoWaitingList(t *testing.T) {
	opt := domain.BookingOption{Capacity: 1, OverflowCapacity: 0}
	l := ledger(1)

	assert.Nil(t, allocation.ResolvePromotion(opt, allocation.Rank(opt, l), l[0].ID))
}

func TestResolvePromotion_RemovingWaitingNeverPromotes(t *testing.T) {
	opt := domain.BookingOption{Capacity: 1, OverflowCapacity: 2}
	l := ledger(3)

	assert.Nil(t, allocation.ResolvePromotion(opt, allocation.Rank(opt, l), l[1].ID))
}

func TestResolvePromotion_RemovingOverCapacityNeverPromotes(t *testing.T) {
	opt := domain.BookingOption{Capacity: 1, OverflowCapacity: 0}
	l := ledger(3)

	assert.Nil(t, allocation.ResolvePromotion(opt, allocation.Rank(opt, l), l[2].ID))
}

func TestResolvePromotion_UnlimitedNeverPromotes(t *testing.T) {
	opt := domain.BookingOption{}
	l := ledger(3)

	assert.Nil(t, allocation.ResolvePromotion(opt, allocation.Rank(opt, l), l[0].ID))
}

func TestResolvePromotion_UnknownRequest(t *testing.T) {
	opt := domain.BookingOption{Capacity: 1, OverflowCapacity: 1}
	l := ledger(2)

	assert.Nil(t, allocation.ResolvePromotion(opt, allocation.Rank(opt, l), 999))
}

func TestResolvePromotion_SkipsIneligibleWaiter(t *testing.T) {
	// A booked, B ineligible, C waiting: cancelling A promotes C.
	opt := domain.BookingOption{Capacity: 1, OverflowCapacity: 1}
	l := ledger(3)
	l[1].Eligible = false

	promoted := allocation.ResolvePromotion(opt, allocation.Rank(opt, l), l[0].ID)
	require.NotNil(t, promoted)
	assert.Equal(t, l[2].UserID, promoted.Request.UserID)
}

func TestPromotions_CapacityIncrease(t *testing.T) {
	l := ledger(5)
	before := allocation.Rank(domain.BookingOption{Capacity: 2, OverflowCapacity: 3}, l)
	after := allocation.Rank(domain.BookingOption{Capacity: 4, OverflowCapacity: 1}, l)

	promoted := allocation.Promotions(before, after)
	require.Len(t, promoted, 2)
	assert.Equal(t, l[2].ID, promoted[0].Request.ID)
	assert.Equal(t, l[3].ID, promoted[1].Request.ID)
}

func TestPromotions_IgnoresAppends(t *testing.T) {
	opt := domain.BookingOption{Capacity: 3}
	l := ledger(2)

	before := allocation.Rank(opt, l)
	after := allocation.Rank(opt, ledger(3))
	// ledger(3) has fresh user ids but ids 1..3; only id 3 is new
	promoted := allocation.Promotions(before, after)
	assert.Empty(t, promoted)
}

func TestNewlyOverCapacity_CapacityReduction(t *testing.T) {
	l := ledger(4)
	before := allocation.Rank(domain.BookingOption{Capacity: 2, OverflowCapacity: 2}, l)
	after := allocation.Rank(domain.BookingOption{Capacity: 1, OverflowCapacity: 1}, l)

	over := allocation.NewlyOverCapacity(before, after)
	require.Len(t, over, 2)
	assert.Equal(t, l[2].ID, over[0].Request.ID)
	assert.Equal(t, l[3].ID, over[1].Request.ID)

	assert.Empty(t, allocation.NewlyOverCapacity(after, after))
}

func TestOccupy(t *testing.T) {
	opt := domain.BookingOption{Capacity: 3, OverflowCapacity: 2}
	occ := allocation.Occupy(opt, allocation.Rank(opt, ledger(4)))

	assert.Equal(t, 3, occ.BookedCount)
	assert.Equal(t, 1, occ.WaitingCount)
	assert.Equal(t, 0, occ.AvailableSeats)
	assert.Equal(t, 1, occ.AvailableWaitingSeats)
	assert.False(t, occ.Unlimited)

	unlimited := allocation.Occupy(domain.BookingOption{}, allocation.Rank(domain.BookingOption{}, ledger(4)))
	assert.True(t, unlimited.Unlimited)
	assert.Equal(t, allocation.UnlimitedSeats, unlimited.AvailableSeats)
	assert.Equal(t, 4, unlimited.BookedCount)
}
