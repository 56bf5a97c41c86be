// Package mmongo wraps a lazily-connected MongoDB client used for the
// schemaless sample metadata blobs and the append-only audit collection
// (saga state lives in Postgres, see internal/saga/repository.go, so its
// row lock and its context_data/steps/compensations jsonb stay in one
// atomic transaction). Adapted from the teacher's common/mmongo/mongo.go
// with the same lazy-singleton shape and an injected logger instead of
// log.Fatal.
package mmongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tracseq/lims-core/pkg/mlog"
)

// Connection is a hub that deals with MongoDB connections.
type Connection struct {
	URI      string
	Database string
	Logger   mlog.Logger

	client    *mongo.Client
	connected bool
}

// Connect opens the client and verifies connectivity.
func (c *Connection) Connect(ctx context.Context) error {
	if c.Logger == nil {
		c.Logger = &mlog.NoneLogger{}
	}

	c.Logger.Info("connecting to mongodb")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.URI))
	if err != nil {
		return fmt.Errorf("connect mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongodb: %w", err)
	}

	c.client = client
	c.connected = true

	c.Logger.Info("connected to mongodb")

	return nil
}

// Client returns the driver client, connecting lazily on first use.
func (c *Connection) Client(ctx context.Context) (*mongo.Client, error) {
	if !c.connected {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.client, nil
}

// Collection returns a handle to a collection in the connection's database.
func (c *Connection) Collection(ctx context.Context, name string) (*mongo.Collection, error) {
	client, err := c.Client(ctx)
	if err != nil {
		return nil, err
	}

	return client.Database(c.Database).Collection(name), nil
}
