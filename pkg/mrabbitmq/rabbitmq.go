// Package mrabbitmq wraps a lazily-connected RabbitMQ channel used by the
// event bus (C2) to relay events across service boundaries. Adapted from
// the teacher's common/mrabbitmq/rabbitmq.go, ported from the
// unmaintained streadway/amqp to its maintained successor
// rabbitmq/amqp091-go, with an injected logger instead of log.Fatal.
package mrabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tracseq/lims-core/pkg/mlog"
)

// Connection is a hub that deals with RabbitMQ connections.
type Connection struct {
	URL    string
	Logger mlog.Logger

	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
}

// Connect dials the broker and opens a channel.
func (c *Connection) Connect(ctx context.Context) error {
	if c.Logger == nil {
		c.Logger = &mlog.NoneLogger{}
	}

	c.Logger.Info("connecting to rabbitmq")

	conn, err := amqp.Dial(c.URL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}

	c.conn = conn
	c.channel = ch
	c.connected = true

	c.Logger.Info("connected to rabbitmq")

	return nil
}

// Channel returns the channel, connecting lazily on first use.
func (c *Connection) Channel(ctx context.Context) (*amqp.Channel, error) {
	if !c.connected {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.channel, nil
}

// Close tears down the channel and connection.
func (c *Connection) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}

	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}
