// Package cachesvc keeps revoked access tokens until they expire.
package cachesvc

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
)

const keyPrefix = "denylist:jwt:"

type redisDenylist struct {
	client *redis.Client
}

var _ core.TokenDenylist = (*redisDenylist)(nil)

func NewRedisClient(conf core.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
}

func NewRedisDenylist(client *redis.Client) core.TokenDenylist {
	return &redisDenylist{client: client}
}

func (d *redisDenylist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // already expired
	}
	return errors.Wrap(d.client.Set(ctx, keyPrefix+tokenID, 1, ttl).Err(), "revoking token")
}

func (d *redisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, keyPrefix+tokenID).Result()
	if err != nil {
		return false, errors.Wrap(err, "checking token")
	}
	return n > 0, nil
}

// memoryDenylist is used when no Redis is configured; revocations do not survive restarts
// and are not shared between instances.
type memoryDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time // {tokenID: expiry}
	now     core.NowFunc
}

func NewMemoryDenylist() core.TokenDenylist {
	return &memoryDenylist{revoked: make(map[string]time.Time), now: core.UTCNow}
}

func (d *memoryDenylist) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, exp := range d.revoked {
		if !exp.After(now) {
			delete(d.revoked, id)
		}
	}
	d.revoked[tokenID] = now.Add(ttl)
	return nil
}

func (d *memoryDenylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	exp, ok := d.revoked[tokenID]
	return ok && exp.After(d.now()), nil
}
