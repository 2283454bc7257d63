/**
 * @description
 * Redis-backed per-tenant sync lock. Multiple engine instances pointed at the
 * same database coordinate through a SET NX key per credential group, so a
 * tenant is synced by at most one instance at a time. Unlock releases only
 * the holder's own lock via a compare-and-delete script, which keeps a slow
 * instance from dropping a lock a peer re-acquired after TTL expiry.
 *
 * @dependencies
 * - context, fmt, time: Standard Go libraries.
 * - github.com/redis/go-redis/v9: Redis client.
 * - github.com/google/uuid: Per-instance lock owner token.
 */
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSyncLock implements SyncLocker over a Redis instance.
type RedisSyncLock struct {
	client redis.UniversalClient
	prefix string
	owner  string
}

// NewRedisSyncLock creates a lock keyed under prefix. Each instance gets a
// random owner token so unlocks cannot cross instances.
func NewRedisSyncLock(client redis.UniversalClient, prefix string) *RedisSyncLock {
	if prefix == "" {
		prefix = "banksync:lock"
	}
	return &RedisSyncLock{
		client: client,
		prefix: prefix,
		owner:  uuid.NewString(),
	}
}

// TryLock attempts to claim the tenant lock for ttl. It reports false without
// error when another instance holds the lock.
func (l *RedisSyncLock) TryLock(ctx context.Context, groupID int64, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(groupID), l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock for group %d: %w", groupID, err)
	}
	return ok, nil
}

// Unlock releases the tenant lock if this instance still holds it.
func (l *RedisSyncLock) Unlock(ctx context.Context, groupID int64) error {
	if err := unlockScript.Run(ctx, l.client, []string{l.key(groupID)}, l.owner).Err(); err != nil {
		return fmt.Errorf("failed to release sync lock for group %d: %w", groupID, err)
	}
	return nil
}

func (l *RedisSyncLock) key(groupID int64) string {
	return fmt.Sprintf("%s:%d", l.prefix, groupID)
}
