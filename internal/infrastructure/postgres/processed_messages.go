package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
)

// tryMarkProcessedTx inserts (message_id, handler_name) once.
// Returns:
//
//	ok=true  -> first time processed
//	ok=false -> duplicate delivery (already processed)
func tryMarkProcessedTx(ctx context.Context, tx pgx.Tx, messageID, handlerName string) (ok bool, err error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO processed_messages (message_id, handler_name)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, messageID, handlerName)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ProcessOnce runs fn at most once per (messageID, handlerName).
//   - duplicate: fn is NOT executed; returns processed=false, err=nil.
//   - fn fails: the marker rolls back and the message can be redelivered.
//
// The marker row stays uncommitted while fn runs, so a concurrent redelivery
// blocks on the unique key until this attempt commits or rolls back. fn runs on
// its own connections (the option lock is a separate transaction), so handlers
// must stay idempotent if the final commit fails.
func (r *Repository) ProcessOnce(
	ctx context.Context,
	messageID, handlerName string,
	fn func(ctx context.Context) error,
) (processed bool, err error) {
	messageID = strings.TrimSpace(messageID)
	handlerName = strings.TrimSpace(handlerName)

	// No message_id: we cannot dedupe. Run fn instead of dropping.
	if messageID == "" {
		if err := fn(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	if handlerName == "" {
		handlerName = "unknown"
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	first, err := tryMarkProcessedTx(ctx, tx, messageID, handlerName)
	if err != nil {
		return false, err
	}
	if !first {
		return false, nil
	}

	if err := fn(ctx); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
