package postgres

import (
	"context"
	"fmt"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanRequest(row pgx.CollectableRow) (domain.BookingRequest, error) {
	var r domain.BookingRequest
	err := row.Scan(&r.ID, &r.OptionID, &r.UserID, &r.RequestedAt)
	return r, err
}

// ledger order: ORDER BY requested_at ASC, id ASC
func listOrdered(ctx context.Context, q querier, optionID uuid.UUID) ([]domain.BookingRequest, error) {
	rows, err := q.Query(ctx, `
		SELECT id, option_id, user_id, requested_at
		FROM booking_requests
		WHERE option_id = $1
		ORDER BY requested_at ASC, id ASC
	`, optionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRequest)
}

func (r *Repository) ListOrdered(ctx context.Context, optionID uuid.UUID) ([]domain.BookingRequest, error) {
	return listOrdered(ctx, r.pool, optionID)
}

// /me/requests : ORDER BY requested_at DESC, id DESC
// cursor means "start after this item" in DESC order -> WHERE (requested_at, id) < (cursor.requested_at, cursor.id)
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.BookingRequest, *domain.KeysetCursor, error) {
	limit = domain.ClampLimit(limit)
	args := []any{userID}
	where := "WHERE user_id = $1"

	if cursor != nil {
		where += " AND (requested_at, id) < ($2, $3)"
		args = append(args, cursor.RequestedAt, cursor.ID)
	}

	q := fmt.Sprintf(`
		SELECT id, option_id, user_id, requested_at
		FROM booking_requests
		%s
		ORDER BY requested_at DESC, id DESC
		LIMIT %d
	`, where, limit+1)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, nil, err
	}
	out, err := pgx.CollectRows(rows, scanRequest)
	if err != nil {
		return nil, nil, err
	}

	var next *domain.KeysetCursor
	if len(out) > limit {
		last := out[limit-1]
		next = &domain.KeysetCursor{RequestedAt: last.RequestedAt, ID: last.ID}
		out = out[:limit]
	}
	return out, next, nil
}
