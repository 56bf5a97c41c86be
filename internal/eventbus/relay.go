package eventbus

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tracseq/lims-core/pkg/mlog"
	"github.com/tracseq/lims-core/pkg/mrabbitmq"
)

// Relay propagates an envelope outside this process. The bus calls it
// synchronously from Publish (spec.md §4.1: "cross-service event
// propagation"); a relay failure is logged but never blocks the publisher
// or the in-process dispatch, mirroring handler-failure isolation.
type Relay interface {
	Relay(ctx context.Context, env Envelope) error
}

// AMQPRelay publishes envelopes to a topic exchange, routed by event type,
// so other services (notification, reports, audit) can subscribe
// independently of this process's in-memory handlers.
type AMQPRelay struct {
	Conn     *mrabbitmq.Connection
	Exchange string
	Logger   mlog.Logger
}

// NewAMQPRelay declares the exchange (idempotent) and returns a ready relay.
func NewAMQPRelay(ctx context.Context, conn *mrabbitmq.Connection, exchange string, logger mlog.Logger) (*AMQPRelay, error) {
	ch, err := conn.Channel(ctx)
	if err != nil {
		return nil, fmt.Errorf("relay channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &AMQPRelay{Conn: conn, Exchange: exchange, Logger: logger}, nil
}

func (r *AMQPRelay) Relay(ctx context.Context, env Envelope) error {
	ch, err := r.Conn.Channel(ctx)
	if err != nil {
		return fmt.Errorf("relay channel: %w", err)
	}

	body, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	return ch.PublishWithContext(ctx, r.Exchange, env.EventType, false, false, amqp.Publishing{
		ContentType:  "application/msgpack",
		Body:         body,
		MessageId:    env.EventID,
		Timestamp:    env.CreatedAt,
		DeliveryMode: amqp.Persistent,
	})
}
