package event

import (
	"time"

	"github.com/google/uuid"
)

const (
	Version  = 1
	Producer = "booking-service"
)

// Inbound routing keys.
const (
	RKOptionCreated      = "option.created"
	RKOptionUpdated      = "option.updated"
	RKOptionDeleted      = "option.deleted"
	RKCapabilityRevoked  = "capability.revoked"
	RKCapabilityRestored = "capability.restored"
)

// Outbound routing keys.
const (
	RKRequested    = "booking.requested"
	RKCanceled     = "booking.canceled"
	RKPromoted     = "booking.promoted"
	RKOverCapacity = "booking.over_capacity"
)

// DomainEventEnvelope is the canonical envelope consumed across services.
// NOTE: message_id is optional for backward compatibility.
type DomainEventEnvelope[T any] struct {
	Version    int       `json:"version"`
	Producer   string    `json:"producer"`
	TraceID    string    `json:"trace_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    T         `json:"payload"`
}

func NewEnvelope[T any](messageID uuid.UUID, traceID string, occurredAt time.Time, payload T) DomainEventEnvelope[T] {
	return DomainEventEnvelope[T]{
		Version:    Version,
		Producer:   Producer,
		TraceID:    traceID,
		MessageID:  messageID.String(),
		OccurredAt: occurredAt.UTC(),
		Payload:    payload,
	}
}

// OptionSnapshotPayload carries option.created / option.updated.
// Pointers let the consumer tell a missing field from a zero.
type OptionSnapshotPayload struct {
	OptionID         string     `json:"option_id"`
	Capacity         *int       `json:"capacity,omitempty"`
	OverflowCapacity *int       `json:"overflow_capacity,omitempty"`
	ClosingTime      *time.Time `json:"closing_time,omitempty"`
}

// OptionDeletedPayload accepts both option_id and legacy id.
type OptionDeletedPayload struct {
	OptionID string `json:"option_id,omitempty"`
	ID       string `json:"id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type CapabilityPayload struct {
	OptionID string `json:"option_id"`
	UserID   string `json:"user_id"`
	Reason   string `json:"reason,omitempty"`
}

// BookingPayload is the body of every outbound booking.* message.
type BookingPayload struct {
	OptionID   string `json:"option_id"`
	UserID     string `json:"user_id"`
	RequestID  int64  `json:"request_id"`
	Status     string `json:"status"`
	PrevStatus string `json:"prev_status,omitempty"`
	Rank       int    `json:"rank,omitempty"`
	ActorID    string `json:"actor_id,omitempty"`
	Cause      string `json:"cause,omitempty"`
}
