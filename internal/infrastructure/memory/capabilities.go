package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Capabilities: a user may book an option unless a revocation exists.

func (s *Store) IsEligible(ctx context.Context, optionID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, revoked := s.revoked[capKey{optionID, userID}]
	return !revoked, nil
}

func (s *Store) EligibleSet(ctx context.Context, optionID uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		_, revoked := s.revoked[capKey{optionID, id}]
		out[id] = !revoked
	}
	return out, nil
}

func (s *Store) Revoke(ctx context.Context, optionID, userID uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[capKey{optionID, userID}] = strings.TrimSpace(reason)
	return nil
}

func (s *Store) Restore(ctx context.Context, optionID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.revoked, capKey{optionID, userID})
	return nil
}

// ProcessOnce runs fn unless (messageID, handlerName) already succeeded.
// The marker is recorded only after fn returns nil.
func (s *Store) ProcessOnce(ctx context.Context, messageID, handlerName string, fn func(ctx context.Context) error) (bool, error) {
	key := strings.TrimSpace(handlerName) + "|" + strings.TrimSpace(messageID)
	if strings.TrimSpace(messageID) != "" {
		s.mu.Lock()
		_, seen := s.processed[key]
		s.mu.Unlock()
		if seen {
			return false, nil
		}
	}

	if err := fn(ctx); err != nil {
		return false, err
	}

	if strings.TrimSpace(messageID) != "" {
		s.mu.Lock()
		s.processed[key] = struct{}{}
		s.mu.Unlock()
	}
	return true, nil
}

// Eligible sees the transaction's own capability changes first.
func (t *ledgerTx) Eligible(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	out, err := t.store.EligibleSet(ctx, t.opt.ID, userIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range userIDs {
		if c, ok := t.caps[id]; ok {
			out[id] = c.eligible
		}
	}
	return out, nil
}

func (t *ledgerTx) SetEligibility(ctx context.Context, userID uuid.UUID, eligible bool, reason string) error {
	if t.caps == nil {
		t.caps = map[uuid.UUID]capChange{}
	}
	t.caps[userID] = capChange{eligible: eligible, reason: strings.TrimSpace(reason)}
	return nil
}
