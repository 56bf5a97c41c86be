package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tracseq/lims-core/pkg/mlog"
	"github.com/tracseq/lims-core/pkg/mredis"
)

// idempotencyTTL bounds how long a transaction_id's step completion is
// remembered; long enough to outlast any retry storm, short enough not to
// grow unbounded.
const idempotencyTTL = 24 * time.Hour

// IdempotencyCache records which (transaction_id, step) pairs have already
// been applied. The coordinator calls MarkApplied after each completed
// forward step; it does not call AlreadyApplied before invoking a step, so
// a duplicate invocation is still sent to the service, and duplicate
// handling relies on the service's own AlreadyApplied answer (spec.md
// §4.6). Grounded on auth's SessionCache: same lazy-connected
// mredis.Connection, cache-miss-is-not-an-error shape.
type IdempotencyCache struct {
	conn   *mredis.Connection
	logger mlog.Logger
}

func NewIdempotencyCache(conn *mredis.Connection, logger mlog.Logger) *IdempotencyCache {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &IdempotencyCache{conn: conn, logger: logger}
}

func idempotencyKey(txnID, stepName string) string {
	return fmt.Sprintf("saga:applied:%s:%s", txnID, stepName)
}

// MarkApplied records that stepName for txnID has completed.
func (c *IdempotencyCache) MarkApplied(ctx context.Context, txnID, stepName string) {
	if c.conn == nil {
		return
	}

	client, err := c.conn.Client(ctx)
	if err != nil {
		c.logger.Warnf("saga: idempotency cache unavailable, skipping mark: %v", err)
		return
	}

	if err := client.Set(ctx, idempotencyKey(txnID, stepName), "1", idempotencyTTL).Err(); err != nil {
		c.logger.Warnf("saga: idempotency cache set failed: %v", err)
	}
}

// AlreadyApplied reports whether stepName for txnID was previously marked
// applied. Any Redis error is treated as "not applied" rather than
// propagated, since re-invoking an adapter that itself tolerates duplicate
// calls is safe; this cache is an optimization, not a source of truth.
func (c *IdempotencyCache) AlreadyApplied(ctx context.Context, txnID, stepName string) bool {
	if c.conn == nil {
		return false
	}

	client, err := c.conn.Client(ctx)
	if err != nil {
		return false
	}

	_, err = client.Get(ctx, idempotencyKey(txnID, stepName)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warnf("saga: idempotency cache get failed: %v", err)
		}

		return false
	}

	return true
}
