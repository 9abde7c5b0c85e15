// Package memory is an in-process Store used for STORE_DRIVER=memory and tests.
// Each option has its own mutex; a transaction works on a copy of the ledger and
// publishes it only when the callback succeeds.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/allocation"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/google/uuid"
)

// Message is a committed outbox entry.
type Message struct {
	MessageID  uuid.UUID
	OccurredAt time.Time
	domain.OutboxEvent
}

type capKey struct {
	optionID uuid.UUID
	userID   uuid.UUID
}

type Store struct {
	clock domain.Clock

	mu        sync.Mutex
	locks     map[uuid.UUID]*sync.Mutex
	options   map[uuid.UUID]domain.BookingOption
	ledgers   map[uuid.UUID][]domain.BookingRequest
	seq       int64
	outbox    []Message
	revoked   map[capKey]string
	processed map[string]struct{}
}

func New(clock domain.Clock) *Store {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Store{
		clock:     clock,
		locks:     map[uuid.UUID]*sync.Mutex{},
		options:   map[uuid.UUID]domain.BookingOption{},
		ledgers:   map[uuid.UUID][]domain.BookingRequest{},
		revoked:   map[capKey]string{},
		processed: map[string]struct{}{},
	}
}

func (s *Store) optionLock(optionID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[optionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[optionID] = l
	}
	return l
}

func (s *Store) WithOptionLock(ctx context.Context, optionID uuid.UUID, fn func(tx domain.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.optionLock(optionID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	opt, ok := s.options[optionID]
	ledger := slices.Clone(s.ledgers[optionID])
	s.mu.Unlock()
	if !ok {
		return domain.ErrOptionNotFound
	}

	tx := &ledgerTx{store: s, opt: opt, ledger: ledger}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.deleted {
		delete(s.options, optionID)
		delete(s.ledgers, optionID)
	} else {
		s.options[optionID] = tx.opt
		s.ledgers[optionID] = tx.ledger
	}
	for userID, c := range tx.caps {
		key := capKey{optionID, userID}
		if c.eligible {
			delete(s.revoked, key)
		} else {
			s.revoked[key] = c.reason
		}
	}
	s.outbox = append(s.outbox, tx.pending...)
	return nil
}

func (s *Store) CreateOption(ctx context.Context, opt domain.BookingOption) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.options[opt.ID]; ok {
		return false, nil
	}
	now := s.clock.Now()
	opt.CreatedAt, opt.UpdatedAt = now, now
	s.options[opt.ID] = opt
	return true, nil
}

func (s *Store) GetOption(ctx context.Context, optionID uuid.UUID) (domain.BookingOption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opt, ok := s.options[optionID]
	if !ok {
		return domain.BookingOption{}, domain.ErrOptionNotFound
	}
	return opt, nil
}

func (s *Store) ListOrdered(ctx context.Context, optionID uuid.UUID) ([]domain.BookingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.options[optionID]; !ok {
		return nil, domain.ErrOptionNotFound
	}
	return allocation.Order(s.ledgers[optionID]), nil
}

// ListByUser pages newest first; cursor means "start after this item".
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.BookingRequest, *domain.KeysetCursor, error) {
	limit = domain.ClampLimit(limit)

	s.mu.Lock()
	var mine []domain.BookingRequest
	for _, ledger := range s.ledgers {
		for _, r := range ledger {
			if r.UserID == userID {
				mine = append(mine, r)
			}
		}
	}
	s.mu.Unlock()

	slices.SortFunc(mine, func(a, b domain.BookingRequest) int {
		if c := b.RequestedAt.Compare(a.RequestedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	out := make([]domain.BookingRequest, 0, limit+1)
	for _, r := range mine {
		if cursor != nil && !before(r, *cursor) {
			continue
		}
		out = append(out, r)
		if len(out) > limit {
			break
		}
	}

	var next *domain.KeysetCursor
	if len(out) > limit {
		last := out[limit-1]
		next = &domain.KeysetCursor{RequestedAt: last.RequestedAt, ID: last.ID}
		out = out[:limit]
	}
	return out, next, nil
}

// before reports (r.RequestedAt, r.ID) < (c.RequestedAt, c.ID).
func before(r domain.BookingRequest, c domain.KeysetCursor) bool {
	if !r.RequestedAt.Equal(c.RequestedAt) {
		return r.RequestedAt.Before(c.RequestedAt)
	}
	return r.ID < c.ID
}

// Messages returns committed outbox entries in commit order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.outbox)
}

func (s *Store) nextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

type capChange struct {
	eligible bool
	reason   string
}

type ledgerTx struct {
	store   *Store
	opt     domain.BookingOption
	ledger  []domain.BookingRequest
	caps    map[uuid.UUID]capChange
	pending []Message
	deleted bool
}

func (t *ledgerTx) Option() domain.BookingOption { return t.opt }

func (t *ledgerTx) ListOrdered(ctx context.Context) ([]domain.BookingRequest, error) {
	return allocation.Order(t.ledger), nil
}

func (t *ledgerTx) Append(ctx context.Context, userID uuid.UUID, requestedAt time.Time) (domain.BookingRequest, error) {
	for _, r := range t.ledger {
		if r.UserID == userID {
			return domain.BookingRequest{}, domain.ErrDuplicateRequest
		}
	}
	req := domain.BookingRequest{
		ID:          t.store.nextID(),
		OptionID:    t.opt.ID,
		UserID:      userID,
		RequestedAt: requestedAt,
	}
	t.ledger = append(t.ledger, req)
	return req, nil
}

func (t *ledgerTx) Remove(ctx context.Context, requestID int64) (domain.BookingRequest, error) {
	i := slices.IndexFunc(t.ledger, func(r domain.BookingRequest) bool { return r.ID == requestID })
	if i < 0 {
		return domain.BookingRequest{}, domain.ErrRequestNotFound
	}
	removed := t.ledger[i]
	t.ledger = slices.Delete(t.ledger, i, i+1)
	return removed, nil
}

func (t *ledgerTx) UpdateOption(ctx context.Context, opt domain.BookingOption) error {
	opt.ID = t.opt.ID
	opt.CreatedAt = t.opt.CreatedAt
	opt.UpdatedAt = t.store.clock.Now()
	t.opt = opt
	return nil
}

func (t *ledgerTx) DeleteOption(ctx context.Context) ([]domain.BookingRequest, error) {
	removed := allocation.Order(t.ledger)
	t.ledger = nil
	t.deleted = true
	return removed, nil
}

func (t *ledgerTx) Enqueue(ctx context.Context, ev domain.OutboxEvent) error {
	t.pending = append(t.pending, Message{
		MessageID:   uuid.New(),
		OccurredAt:  t.store.clock.Now(),
		OutboxEvent: ev,
	})
	return nil
}
