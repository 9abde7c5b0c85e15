package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/service"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockBookings struct {
	mock.Mock
}

func (m *MockBookings) UpsertOption(ctx context.Context, actor service.Actor, opt domain.BookingOption) (service.OptionChange, error) {
	args := m.Called(ctx, actor, opt)
	return args.Get(0).(service.OptionChange), args.Error(1)
}

func (m *MockBookings) DeleteOption(ctx context.Context, actor service.Actor, optionID uuid.UUID) ([]domain.BookingRequest, error) {
	args := m.Called(ctx, actor, optionID)
	removed, _ := args.Get(0).([]domain.BookingRequest)
	return removed, args.Error(1)
}

func (m *MockBookings) ChangeEligibility(ctx context.Context, optionID, userID uuid.UUID, eligible bool, reason string) (service.StatusChange, error) {
	args := m.Called(ctx, optionID, userID, eligible, reason)
	return args.Get(0).(service.StatusChange), args.Error(1)
}

func loggerStub() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	assert.NoError(t, err)
	return b
}

func intPtr(v int) *int { return &v }

func TestApply_OptionCreated(t *testing.T) {
	svc := new(MockBookings)
	c := NewConsumer("", "", svc, nil)
	ctx := context.Background()
	optID := uuid.New()

	raw := mustJSON(t, event.OptionSnapshotPayload{
		OptionID:         optID.String(),
		Capacity:         intPtr(10),
		OverflowCapacity: intPtr(3),
	})

	svc.On("UpsertOption", ctx, service.System, domain.BookingOption{ID: optID, Capacity: 10, OverflowCapacity: 3}).
		Return(service.OptionChange{Created: true}, nil).Once()

	err := c.apply(ctx, event.RKOptionCreated, raw, loggerStub())
	assert.NoError(t, err)
	svc.AssertExpectations(t)
}

func TestApply_OptionUpdated_MissingOverflowMeansZero(t *testing.T) {
	svc := new(MockBookings)
	c := NewConsumer("", "", svc, nil)
	ctx := context.Background()
	optID := uuid.New()

	raw := mustJSON(t, event.OptionSnapshotPayload{OptionID: optID.String(), Capacity: intPtr(4)})

	svc.On("UpsertOption", ctx, service.System, domain.BookingOption{ID: optID, Capacity: 4}).
		Return(service.OptionChange{}, nil).Once()

	assert.NoError(t, c.apply(ctx, event.RKOptionUpdated, raw, loggerStub()))
	svc.AssertExpectations(t)
}

func TestApply_OptionSnapshot_PoisonIsDropped(t *testing.T) {
	tests := []struct {
		name string
		raw  json.RawMessage
	}{
		{"invalid json", json.RawMessage(`{`)},
		{"missing capacity", mustJSON(t, event.OptionSnapshotPayload{OptionID: uuid.NewString()})},
		{"missing id", mustJSON(t, event.OptionSnapshotPayload{Capacity: intPtr(1)})},
		{"bad id", mustJSON(t, event.OptionSnapshotPayload{OptionID: "not-a-uuid", Capacity: intPtr(1)})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockBookings)
			c := NewConsumer("", "", svc, nil)

			err := c.apply(context.Background(), event.RKOptionCreated, tt.raw, loggerStub())
			assert.ErrorIs(t, err, errDrop)
			svc.AssertNotCalled(t, "UpsertOption", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestApply_OptionSnapshot_InvalidOptionIsDropped(t *testing.T) {
	svc := new(MockBookings)
	c := NewConsumer("", "", svc, nil)
	ctx := context.Background()

	raw := mustJSON(t, event.OptionSnapshotPayload{OptionID: uuid.NewString(), Capacity: intPtr(-1)})
	svc.On("UpsertOption", ctx, service.System, mock.Anything).
		Return(service.OptionChange{}, domain.ErrInvalidOption).Once()

	assert.ErrorIs(t, c.apply(ctx, event.RKOptionCreated, raw, loggerStub()), errDrop)
}

func TestApply_OptionSnapshot_TransientErrorRequeues(t *testing.T) {
	svc := new(MockBookings)
	c := NewConsumer("", "", svc, nil)
	ctx := context.Background()

	raw := mustJSON(t, event.OptionSnapshotPayload{OptionID: uuid.NewString(), Capacity: intPtr(2)})
	svc.On("UpsertOption", ctx, service.System, mock.Anything).
		Return(service.OptionChange{}, domain.ErrConflict).Once()

	err := c.apply(ctx, event.RKOptionUpdated, raw, loggerStub())
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.NotErrorIs(t, err, errDrop)
}

func TestApply_OptionDeleted_LegacyIDField(t *testing.T) {
	svc := new(MockBookings)
	c := NewConsumer("", "", svc, nil)
	ctx := context.Background()
	optID := uuid.New()

	raw := mustJSON(t, map[string]any{"id": optID.String(), "reason": "course removed"})
	svc.On("DeleteOption", ctx, service.System, optID).Return([]domain.BookingRequest{{ID: 1}}, nil).Once()

	assert.NoError(t, c.apply(ctx, event.RKOptionDeleted, raw, loggerStub()))
	svc.AssertExpectations(t)
}

func TestApply_OptionDeleted_AlreadyGone(t *testing.T) {
	svc := new(MockBookings)
	c := NewConsumer("", "", svc, nil)
	ctx := context.Background()
	optID := uuid.New()

	raw := mustJSON(t, event.OptionDeletedPayload{OptionID: optID.String()})
	svc.On("DeleteOption", ctx, service.System, optID).Return(nil, domain.ErrOptionNotFound).Once()

	assert.NoError(t, c.apply(ctx, event.RKOptionDeleted, raw, loggerStub()))
}

func TestApply_Capabilities(t *testing.T) {
	ctx := context.Background()
	optID, userID := uuid.New(), uuid.New()
	raw := mustJSON(t, event.CapabilityPayload{OptionID: optID.String(), UserID: userID.String(), Reason: " suspended "})

	svc := new(MockBookings)
	c := NewConsumer("", "", svc, nil)
	svc.On("ChangeEligibility", ctx, optID, userID, false, "suspended").Return(service.StatusChange{}, nil).Once()
	svc.On("ChangeEligibility", ctx, optID, userID, true, "suspended").Return(service.StatusChange{}, nil).Once()

	assert.NoError(t, c.apply(ctx, event.RKCapabilityRevoked, raw, loggerStub()))
	assert.NoError(t, c.apply(ctx, event.RKCapabilityRestored, raw, loggerStub()))
	svc.AssertExpectations(t)
}

func TestApply_Capability_MissingUserIsDropped(t *testing.T) {
	svc := new(MockBookings)
	c := NewConsumer("", "", svc, nil)

	raw := mustJSON(t, event.CapabilityPayload{OptionID: uuid.NewString()})
	err := c.apply(context.Background(), event.RKCapabilityRevoked, raw, loggerStub())
	assert.ErrorIs(t, err, errDrop)
}

func TestApply_UnknownRoutingKey_IsIgnored(t *testing.T) {
	svc := new(MockBookings)
	c := NewConsumer("", "", svc, nil)

	err := c.apply(context.Background(), "option.archived", json.RawMessage(`{"x":1}`), loggerStub())
	assert.NoError(t, err)
	svc.AssertExpectations(t)
}

func TestParseID(t *testing.T) {
	id := uuid.New()
	got, err := parseID("option_id", " "+id.String()+" ")
	assert.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = parseID("option_id", "")
	assert.True(t, errors.Is(err, errDrop))
}
