package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tracseq/lims-core/pkg/mlog"
	"github.com/tracseq/lims-core/pkg/mredis"
)

// SessionCache records issued sessions in Redis, keyed by session id. It is
// not a source of truth: Service.issueSession writes an entry and
// Service.Refresh invalidates the entry of the session it revokes (see
// service.go). Service.ValidateToken does not read the cache; it always
// loads the session from the repository. ResetPassword's
// RevokeAllUserSessions does not invalidate cached entries.
type SessionCache struct {
	conn   *mredis.Connection
	logger mlog.Logger
}

func NewSessionCache(conn *mredis.Connection, logger mlog.Logger) *SessionCache {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &SessionCache{conn: conn, logger: logger}
}

func sessionCacheKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("auth:session:%s", sessionID.String())
}

// Put caches that sessionID is valid for userID until expiresAt.
func (c *SessionCache) Put(ctx context.Context, sessionID, userID uuid.UUID, expiresAt time.Time) {
	client, err := c.conn.Client(ctx)
	if err != nil {
		c.logger.Warnf("auth: session cache unavailable, skipping put: %v", err)
		return
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}

	if err := client.Set(ctx, sessionCacheKey(sessionID), userID.String(), ttl).Err(); err != nil {
		c.logger.Warnf("auth: session cache put failed: %v", err)
	}
}

// Get returns the cached user id for a session, and whether it was found.
// Any Redis error is treated as a cache miss rather than propagated, since
// the repository remains authoritative.
func (c *SessionCache) Get(ctx context.Context, sessionID uuid.UUID) (uuid.UUID, bool) {
	client, err := c.conn.Client(ctx)
	if err != nil {
		return uuid.Nil, false
	}

	val, err := client.Get(ctx, sessionCacheKey(sessionID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warnf("auth: session cache get failed: %v", err)
		}

		return uuid.Nil, false
	}

	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false
	}

	return id, true
}

// Invalidate drops the cached entry for a revoked session.
func (c *SessionCache) Invalidate(ctx context.Context, sessionID uuid.UUID) {
	client, err := c.conn.Client(ctx)
	if err != nil {
		return
	}

	if err := client.Del(ctx, sessionCacheKey(sessionID)).Err(); err != nil {
		c.logger.Warnf("auth: session cache invalidate failed: %v", err)
	}
}
