package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cycleLockKey = "sync:cycle-lock"
	lastSyncKey  = "sync:last-sync"
)

// releaseLockScript deletes the lock only if the caller still holds it.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSyncStateRepository keeps the deployment-wide cycle lock and the
// last-sync timestamp. Both are ephemeral coordination state, not records.
type RedisSyncStateRepository struct {
	client *redis.Client
}

func NewRedisSyncStateRepository(client *redis.Client) *RedisSyncStateRepository {
	return &RedisSyncStateRepository{client: client}
}

// AcquireCycleLock takes the cross-process sync lock with SET NX. The TTL
// bounds how long a crashed holder can wedge the deployment.
func (r *RedisSyncStateRepository) AcquireCycleLock(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, cycleLockKey, holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	return ok, nil
}

func (r *RedisSyncStateRepository) ReleaseCycleLock(ctx context.Context, holder string) error {
	if err := releaseLockScript.Run(ctx, r.client, []string{cycleLockKey}, holder).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release cycle lock: %w", err)
	}
	return nil
}

func (r *RedisSyncStateRepository) SetLastSync(ctx context.Context, at time.Time) error {
	err := r.client.Set(ctx, lastSyncKey, at.UTC().Format(time.RFC3339Nano), 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}
	return nil
}

func (r *RedisSyncStateRepository) GetLastSync(ctx context.Context) (*time.Time, error) {
	value, err := r.client.Get(ctx, lastSyncKey).Result()
	if err == redis.Nil {
		// Never synced yet.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last sync timestamp: %w", err)
	}
	return &at, nil
}
