package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// A user may book an option unless capability_revocations holds a row for the
// pair. Mutations read and write the table on the option's locked tx; the
// pool-level methods serve unlocked reads and options that do not exist yet.

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func eligibleSet(ctx context.Context, q querier, optionID uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		out[id] = true
		ids = append(ids, id.String())
	}

	rows, err := q.Query(ctx, `
		SELECT user_id
		FROM capability_revocations
		WHERE option_id = $1 AND user_id = ANY($2::uuid[])
	`, optionID, ids)
	if err != nil {
		return nil, err
	}
	revoked, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, err
	}
	for _, id := range revoked {
		out[id] = false
	}
	return out, nil
}

func setEligibility(ctx context.Context, e execer, optionID, userID uuid.UUID, eligible bool, reason string) error {
	if eligible {
		_, err := e.Exec(ctx, `
			DELETE FROM capability_revocations
			WHERE option_id = $1 AND user_id = $2
		`, optionID, userID)
		return err
	}
	_, err := e.Exec(ctx, `
		INSERT INTO capability_revocations (option_id, user_id, reason, revoked_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (option_id, user_id) DO UPDATE
		SET reason = EXCLUDED.reason,
		    revoked_at = NOW()
	`, optionID, userID, strings.TrimSpace(reason))
	return err
}

func (r *Repository) IsEligible(ctx context.Context, optionID, userID uuid.UUID) (bool, error) {
	set, err := eligibleSet(ctx, r.pool, optionID, []uuid.UUID{userID})
	if err != nil {
		return false, err
	}
	return set[userID], nil
}

func (r *Repository) EligibleSet(ctx context.Context, optionID uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	return eligibleSet(ctx, r.pool, optionID, userIDs)
}

func (r *Repository) Revoke(ctx context.Context, optionID, userID uuid.UUID, reason string) error {
	return setEligibility(ctx, r.pool, optionID, userID, false, reason)
}

func (r *Repository) Restore(ctx context.Context, optionID, userID uuid.UUID) error {
	return setEligibility(ctx, r.pool, optionID, userID, true, "")
}

func (t *ledgerTx) Eligible(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	return eligibleSet(ctx, t.tx, t.opt.ID, userIDs)
}

func (t *ledgerTx) SetEligibility(ctx context.Context, userID uuid.UUID, eligible bool, reason string) error {
	return setEligibility(ctx, t.tx, t.opt.ID, userID, eligible, reason)
}
