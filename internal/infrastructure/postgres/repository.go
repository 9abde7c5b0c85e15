package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/allocation"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueOptionUser = "booking_requests_option_user_key"

type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func New(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// mapError turns lock and serialization failures into domain.ErrConflict and the
// (option_id,user_id) unique violation into domain.ErrDuplicateRequest.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return fmt.Errorf("%w (sqlstate %s)", domain.ErrConflict, pgErr.Code)
	case "23505":
		if pgErr.ConstraintName == uniqueOptionUser {
			return domain.ErrDuplicateRequest
		}
	}
	return err
}

// -------------------------
// Lock policy:
// Every ledger mutation takes the booking_options row FOR UPDATE first and does
// nothing else before it. One row per option means one lock order, so
// submit/cancel/update/delete never form a cycle. lock_timeout bounds the wait;
// a timeout surfaces as ErrConflict and the service retries.
// -------------------------

func (r *Repository) WithOptionLock(ctx context.Context, optionID uuid.UUID, fn func(tx domain.LedgerTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if r.lockTimeout > 0 {
		// SET does not take bind parameters
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
			return mapError(err)
		}
	}

	opt, err := scanOption(tx.QueryRow(ctx, `
		SELECT option_id, capacity, overflow_capacity, closing_time, created_at, updated_at
		FROM booking_options
		WHERE option_id = $1
		FOR UPDATE
	`, optionID))
	if err != nil {
		return mapError(err)
	}

	if err := fn(&ledgerTx{tx: tx, opt: opt}); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit(ctx))
}

func scanOption(row pgx.Row) (domain.BookingOption, error) {
	var o domain.BookingOption
	err := row.Scan(&o.ID, &o.Capacity, &o.OverflowCapacity, &o.ClosingTime, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BookingOption{}, domain.ErrOptionNotFound
	}
	return o, err
}

func (r *Repository) CreateOption(ctx context.Context, opt domain.BookingOption) (bool, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO booking_options (option_id, capacity, overflow_capacity, closing_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (option_id) DO NOTHING
		RETURNING option_id
	`, opt.ID, opt.Capacity, opt.OverflowCapacity, opt.ClosingTime).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

func (r *Repository) GetOption(ctx context.Context, optionID uuid.UUID) (domain.BookingOption, error) {
	return scanOption(r.pool.QueryRow(ctx, `
		SELECT option_id, capacity, overflow_capacity, closing_time, created_at, updated_at
		FROM booking_options
		WHERE option_id = $1
	`, optionID))
}

// ledgerTx is the option's critical section; the option row is already locked.
type ledgerTx struct {
	tx  pgx.Tx
	opt domain.BookingOption
}

func (t *ledgerTx) Option() domain.BookingOption { return t.opt }

func (t *ledgerTx) ListOrdered(ctx context.Context) ([]domain.BookingRequest, error) {
	return listOrdered(ctx, t.tx, t.opt.ID)
}

func (t *ledgerTx) Append(ctx context.Context, userID uuid.UUID, requestedAt time.Time) (domain.BookingRequest, error) {
	req := domain.BookingRequest{OptionID: t.opt.ID, UserID: userID}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO booking_requests (option_id, user_id, requested_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (option_id, user_id) DO NOTHING
		RETURNING id, requested_at
	`, t.opt.ID, userID, requestedAt).Scan(&req.ID, &req.RequestedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BookingRequest{}, domain.ErrDuplicateRequest
	}
	if err != nil {
		return domain.BookingRequest{}, err
	}
	return req, nil
}

func (t *ledgerTx) Remove(ctx context.Context, requestID int64) (domain.BookingRequest, error) {
	var req domain.BookingRequest
	err := t.tx.QueryRow(ctx, `
		DELETE FROM booking_requests
		WHERE id = $1 AND option_id = $2
		RETURNING id, option_id, user_id, requested_at
	`, requestID, t.opt.ID).Scan(&req.ID, &req.OptionID, &req.UserID, &req.RequestedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BookingRequest{}, domain.ErrRequestNotFound
	}
	return req, err
}

func (t *ledgerTx) UpdateOption(ctx context.Context, opt domain.BookingOption) error {
	updated, err := scanOption(t.tx.QueryRow(ctx, `
		UPDATE booking_options
		SET capacity = $2,
		    overflow_capacity = $3,
		    closing_time = $4,
		    updated_at = NOW()
		WHERE option_id = $1
		RETURNING option_id, capacity, overflow_capacity, closing_time, created_at, updated_at
	`, t.opt.ID, opt.Capacity, opt.OverflowCapacity, opt.ClosingTime))
	if err != nil {
		return err
	}
	t.opt = updated
	return nil
}

func (t *ledgerTx) DeleteOption(ctx context.Context) ([]domain.BookingRequest, error) {
	rows, err := t.tx.Query(ctx, `
		DELETE FROM booking_requests
		WHERE option_id = $1
		RETURNING id, option_id, user_id, requested_at
	`, t.opt.ID)
	if err != nil {
		return nil, err
	}
	removed, err := pgx.CollectRows(rows, scanRequest)
	if err != nil {
		return nil, err
	}

	if _, err := t.tx.Exec(ctx, `DELETE FROM booking_options WHERE option_id = $1`, t.opt.ID); err != nil {
		return nil, err
	}
	return allocation.Order(removed), nil
}

// Enqueue writes the envelope to the outbox in the same transaction.
func (t *ledgerTx) Enqueue(ctx context.Context, ev domain.OutboxEvent) error {
	msgID := uuid.New()
	body, err := json.Marshal(event.NewEnvelope(msgID, ev.TraceID, time.Now(), ev.Payload))
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.RoutingKey, err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO outbox (message_id, trace_id, routing_key, payload, occurred_at, status)
		VALUES ($1, $2, $3, $4, NOW(), 'pending')
	`, msgID, ev.TraceID, ev.RoutingKey, body)
	return err
}
