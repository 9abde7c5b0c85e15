package rabbitmq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/metrics"
	pkgctx "github.com/baechuer/real-time-ressys/services/booking-service/internal/pkg/context"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/pkg/logger"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/service"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	supportedVersion = 1
	queueName        = "booking-service.option-snapshots"

	handlerOptions      = "option_snapshots"
	handlerCapabilities = "capabilities"
)

// errDrop marks a poison message: it is acked and never retried.
var errDrop = errors.New("drop message")

// Deduper guards a handler with the processed_messages fence.
type Deduper interface {
	ProcessOnce(ctx context.Context, messageID, handlerName string, fn func(ctx context.Context) error) (bool, error)
}

// Bookings is the part of the booking service driven by inbound messages.
type Bookings interface {
	UpsertOption(ctx context.Context, actor service.Actor, opt domain.BookingOption) (service.OptionChange, error)
	DeleteOption(ctx context.Context, actor service.Actor, optionID uuid.UUID) ([]domain.BookingRequest, error)
	ChangeEligibility(ctx context.Context, optionID, userID uuid.UUID, eligible bool, reason string) (service.StatusChange, error)
}

type Consumer struct {
	rabbitURL string
	exchange  string
	svc       Bookings
	dedupe    Deduper
}

func NewConsumer(rabbitURL, exchange string, svc Bookings, dedupe Deduper) *Consumer {
	return &Consumer{
		rabbitURL: strings.TrimSpace(rabbitURL),
		exchange:  strings.TrimSpace(exchange),
		svc:       svc,
		dedupe:    dedupe,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	log := logger.Logger.With().Str("component", "rabbitmq_consumer").Logger()

	conn, err := amqp.Dial(c.rabbitURL)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	closeAll := func() {
		_ = ch.Close()
		_ = conn.Close()
	}

	// Ensure exchange exists (idempotent)
	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		closeAll()
		return err
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		closeAll()
		return err
	}

	for _, rk := range []string{
		event.RKOptionCreated, event.RKOptionUpdated, event.RKOptionDeleted,
		event.RKCapabilityRevoked, event.RKCapabilityRestored,
	} {
		if err := ch.QueueBind(q.Name, rk, c.exchange, false, nil); err != nil {
			closeAll()
			return err
		}
	}

	if err := ch.Qos(10, 0, false); err != nil {
		closeAll()
		return err
	}

	deliveries, err := ch.Consume(q.Name, event.Producer, false, false, false, false, nil)
	if err != nil {
		closeAll()
		return err
	}

	go func() {
		defer closeAll()

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Warn().Msg("delivery channel closed")
					return
				}

				if err := c.handleDelivery(ctx, d); err != nil {
					_ = d.Nack(false, true) // transient => requeue
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	log.Info().Str("queue", q.Name).Msg("consumer started")
	return nil
}

// messageID prefers envelope.message_id, then the AMQP MessageId, else a body hash.
func messageID(env event.DomainEventEnvelope[json.RawMessage], d amqp.Delivery) string {
	if id := strings.TrimSpace(env.MessageID); id != "" {
		return id
	}
	if id := strings.TrimSpace(d.MessageId); id != "" {
		return id
	}
	h := sha256.Sum256(append([]byte(d.RoutingKey+"\n"), d.Body...))
	return "hash:" + hex.EncodeToString(h[:])
}

// handleDelivery returns nil to ack and an error to requeue.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) error {
	baseLog := logger.Logger.With().
		Str("component", "rabbitmq_consumer").
		Str("routing_key", d.RoutingKey).
		Logger()

	var env event.DomainEventEnvelope[json.RawMessage]
	if err := json.Unmarshal(d.Body, &env); err != nil {
		baseLog.Warn().Err(err).Msg("invalid envelope json; dropping")
		metrics.ConsumedTotal.WithLabelValues(d.RoutingKey, "drop").Inc()
		return nil
	}
	if env.Version != supportedVersion {
		baseLog.Warn().Int("version", env.Version).Msg("unsupported envelope version; dropping")
		metrics.ConsumedTotal.WithLabelValues(d.RoutingKey, "drop").Inc()
		return nil
	}

	msgID := messageID(env, d)
	traceID := strings.TrimSpace(env.TraceID)
	if traceID == "" {
		traceID = strings.TrimSpace(d.CorrelationId)
	}
	log := baseLog.With().
		Str("message_id", msgID).
		Str("trace_id", traceID).
		Logger()
	ctx = pkgctx.WithTraceID(ctx, traceID)

	handler := handlerOptions
	if strings.HasPrefix(d.RoutingKey, "capability.") {
		handler = handlerCapabilities
	}

	processed, err := c.dedupe.ProcessOnce(ctx, msgID, handler, func(ctx context.Context) error {
		return c.apply(ctx, d.RoutingKey, env.Payload, log)
	})
	switch {
	case errors.Is(err, errDrop):
		log.Warn().Err(err).Msg("dropping message")
		metrics.ConsumedTotal.WithLabelValues(d.RoutingKey, "drop").Inc()
		return nil
	case err != nil:
		log.Error().Err(err).Msg("processing failed (requeue)")
		metrics.ConsumedTotal.WithLabelValues(d.RoutingKey, "requeue").Inc()
		return err
	case !processed:
		log.Info().Msg("duplicate delivery ignored")
		metrics.ConsumedTotal.WithLabelValues(d.RoutingKey, "duplicate").Inc()
		return nil
	}
	metrics.ConsumedTotal.WithLabelValues(d.RoutingKey, "ok").Inc()
	return nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: missing %s", errDrop, field)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s: %v", errDrop, field, err)
	}
	return id, nil
}

func (c *Consumer) apply(ctx context.Context, routingKey string, raw json.RawMessage, log zerolog.Logger) error {
	switch routingKey {
	case event.RKOptionCreated, event.RKOptionUpdated:
		var p event.OptionSnapshotPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: invalid payload json: %v", errDrop, err)
		}
		optID, err := parseID("option_id", p.OptionID)
		if err != nil {
			return err
		}
		if p.Capacity == nil {
			return fmt.Errorf("%w: missing capacity", errDrop)
		}
		opt := domain.BookingOption{ID: optID, Capacity: *p.Capacity, ClosingTime: p.ClosingTime}
		if p.OverflowCapacity != nil {
			opt.OverflowCapacity = *p.OverflowCapacity
		}

		ch, err := c.svc.UpsertOption(ctx, service.System, opt)
		if errors.Is(err, domain.ErrInvalidOption) {
			return fmt.Errorf("%w: %v", errDrop, err)
		}
		if err != nil {
			return err
		}
		log.Info().
			Bool("created", ch.Created).
			Int("promoted", len(ch.Promoted)).
			Int("over_capacity", len(ch.OverCapacity)).
			Msg("option snapshot applied")
		return nil

	case event.RKOptionDeleted:
		var p event.OptionDeletedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: invalid payload json: %v", errDrop, err)
		}
		// tolerate legacy field
		idStr := p.OptionID
		if strings.TrimSpace(idStr) == "" {
			idStr = p.ID
		}
		optID, err := parseID("option_id", idStr)
		if err != nil {
			return err
		}

		removed, err := c.svc.DeleteOption(ctx, service.System, optID)
		if errors.Is(err, domain.ErrOptionNotFound) {
			log.Info().Msg("option already gone")
			return nil
		}
		if err != nil {
			return err
		}
		log.Info().Int("removed", len(removed)).Str("reason", strings.TrimSpace(p.Reason)).Msg("option deleted")
		return nil

	case event.RKCapabilityRevoked, event.RKCapabilityRestored:
		var p event.CapabilityPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: invalid payload json: %v", errDrop, err)
		}
		optID, err := parseID("option_id", p.OptionID)
		if err != nil {
			return err
		}
		userID, err := parseID("user_id", p.UserID)
		if err != nil {
			return err
		}

		eligible := routingKey == event.RKCapabilityRestored
		ch, err := c.svc.ChangeEligibility(ctx, optID, userID, eligible, strings.TrimSpace(p.Reason))
		if err != nil {
			return err
		}
		log.Info().
			Bool("eligible", eligible).
			Int("promoted", len(ch.Promoted)).
			Int("over_capacity", len(ch.OverCapacity)).
			Msg("capability change applied")
		return nil

	default:
		log.Warn().Msg("unknown routing key; ignoring")
		return nil
	}
}
