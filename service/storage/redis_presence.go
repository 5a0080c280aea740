package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// presence key: im:presence:<user>
// Value: gateway node id, TTL controls the online validity period.

func presenceKey(user string) string { return "im:presence:" + user }

// RedisPresence announces which gateway a user is reachable through, for
// operators and external services that need per-user routing information.
type RedisPresence struct {
	rdb    *redis.Client
	nodeID string
	ttl    time.Duration
}

func NewRedisPresence(rdb *redis.Client, nodeID string, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &RedisPresence{rdb: rdb, nodeID: nodeID, ttl: ttl}
}

// Online sets the user as online on this node and renews the TTL.
func (p *RedisPresence) Online(ctx context.Context, user string) error {
	return p.rdb.Set(ctx, presenceKey(user), p.nodeID, p.ttl).Err()
}

// Offline actively sets the user offline (deletes the key).
func (p *RedisPresence) Offline(ctx context.Context, user string) error {
	return p.rdb.Del(ctx, presenceKey(user)).Err()
}

// Lookup returns the node currently holding the user's connections.
func (p *RedisPresence) Lookup(ctx context.Context, user string) (nodeID string, online bool, err error) {
	val, err := p.rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "presence lookup")
	}
	return val, true, nil
}
