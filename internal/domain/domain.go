package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RankedStatus is computed from the ledger on every read. It is never stored.
type RankedStatus string

const (
	StatusBooked       RankedStatus = "booked"
	StatusWaiting      RankedStatus = "waiting"
	StatusOverCapacity RankedStatus = "over_capacity"
	StatusNotBooked    RankedStatus = "not_booked"
)

var (
	ErrOptionNotFound  = errors.New("booking option not found")
	ErrRequestNotFound = errors.New("booking request not found")

	ErrDuplicateRequest = errors.New("user already has an active request for this option")
	ErrOptionFull       = errors.New("booking option is full")
	ErrBookingClosed    = errors.New("booking option is closed")
	ErrNotEligible      = errors.New("user is not allowed to book this option")
	ErrInvalidOption    = errors.New("invalid booking option")

	// ErrConflict marks a lost race on the option lock (lock timeout, serialization
	// failure, deadlock). Callers may retry.
	ErrConflict = errors.New("booking meanwhile became full")

	ErrForbidden = errors.New("forbidden")
	ErrCacheMiss = errors.New("cache miss")
)

type BookingOption struct {
	ID uuid.UUID

	// Capacity is maxanswers; 0 means unlimited.
	Capacity int
	// OverflowCapacity is maxoverbooking, the waiting-list size.
	OverflowCapacity int

	ClosingTime *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o BookingOption) Unlimited() bool { return o.Capacity == 0 }

// BookingRequest is one user's active answer for one option.
type BookingRequest struct {
	// ID grows with insertion order and breaks ties on RequestedAt.
	ID int64

	OptionID    uuid.UUID
	UserID      uuid.UUID
	RequestedAt time.Time

	// Eligible is resolved at evaluation time, not persisted.
	Eligible bool
}

type KeysetCursor struct {
	RequestedAt time.Time
	ID          int64
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// OutboxEvent is an outbound notification written in the same transaction as the
// ledger change that caused it.
type OutboxEvent struct {
	RoutingKey string
	TraceID    string
	Payload    any
}

// Store owns options and their ledgers.
type Store interface {
	// WithOptionLock runs fn while holding the exclusive mutation lock for optionID.
	// Everything fn writes through tx commits atomically when fn returns nil.
	WithOptionLock(ctx context.Context, optionID uuid.UUID, fn func(tx LedgerTx) error) error

	// CreateOption inserts opt unless it exists. created reports whether it was new.
	CreateOption(ctx context.Context, opt BookingOption) (created bool, err error)

	// Unlocked reads; may be slightly stale.
	GetOption(ctx context.Context, optionID uuid.UUID) (BookingOption, error)
	ListOrdered(ctx context.Context, optionID uuid.UUID) ([]BookingRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *KeysetCursor) ([]BookingRequest, *KeysetCursor, error)
}

// LedgerTx is the view of one option inside its critical section.
type LedgerTx interface {
	Option() BookingOption

	ListOrdered(ctx context.Context) ([]BookingRequest, error)
	Append(ctx context.Context, userID uuid.UUID, requestedAt time.Time) (BookingRequest, error)
	Remove(ctx context.Context, requestID int64) (BookingRequest, error)

	UpdateOption(ctx context.Context, opt BookingOption) error
	DeleteOption(ctx context.Context) ([]BookingRequest, error)

	// Eligible resolves capability state on the locked view, so a ranking never
	// mixes in a concurrent capability change.
	Eligible(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	// SetEligibility revokes or restores userID in the same transaction.
	SetEligibility(ctx context.Context, userID uuid.UUID, eligible bool, reason string) error

	Enqueue(ctx context.Context, ev OutboxEvent) error
}
