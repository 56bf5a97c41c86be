// Package mredis wraps a lazily-connected Redis client used for the auth
// session cache (C3) and the saga idempotency cache (C6). Adapted from the
// teacher's common/mredis/redis.go, same lazy-singleton shape.
package mredis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tracseq/lims-core/pkg/mlog"
)

// Connection is a hub that deals with Redis connections.
type Connection struct {
	URL    string
	Logger mlog.Logger

	client    *redis.Client
	connected bool
}

// Connect opens the client and pings it.
func (c *Connection) Connect(ctx context.Context) error {
	if c.Logger == nil {
		c.Logger = &mlog.NoneLogger{}
	}

	c.Logger.Info("connecting to redis")

	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	c.client = client
	c.connected = true

	c.Logger.Info("connected to redis")

	return nil
}

// Client returns the redis client, connecting lazily on first use.
func (c *Connection) Client(ctx context.Context) (*redis.Client, error) {
	if !c.connected {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.client, nil
}
