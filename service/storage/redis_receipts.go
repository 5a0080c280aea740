package storage

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// receipts key: im:read:<conversation>
// hash field <user> -> last-read unix ms

// Set-if-greater on a hash field. Returns the value now stored.
// KEYS[1] = receipts hash key
// ARGV[1] = user field
// ARGV[2] = candidate timestamp
const luaSetMaxRead = `
local cur = redis.call("HGET", KEYS[1], ARGV[1])
local ts = tonumber(ARGV[2])
if cur and tonumber(cur) >= ts then
  return tonumber(cur)
end
redis.call("HSET", KEYS[1], ARGV[1], ts)
return ts
`

// RedisReceipts is the shared-store ReceiptStore: one hash per conversation
// with the monotonic-max update enforced atomically in Lua, so gateways on
// different nodes converge without coordination.
type RedisReceipts struct {
	rdb    *redis.Client
	setMax *redis.Script
}

func NewRedisReceipts(rdb *redis.Client) *RedisReceipts {
	return &RedisReceipts{
		rdb:    rdb,
		setMax: redis.NewScript(luaSetMaxRead),
	}
}

func receiptsKey(conversationID string) string { return "im:read:" + conversationID }

func (s *RedisReceipts) GetLastRead(ctx context.Context, userID, conversationID string) (int64, error) {
	val, err := s.rdb.HGet(ctx, receiptsKey(conversationID), userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read receipt lookup")
	}
	ts, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad receipt value %q", val)
	}
	return ts, nil
}

func (s *RedisReceipts) SetMaxLastRead(ctx context.Context, userID, conversationID string, ts int64) (int64, error) {
	stored, err := s.setMax.Run(ctx, s.rdb, []string{receiptsKey(conversationID)}, userID, ts).Int64()
	if err != nil {
		return 0, errors.Wrap(err, "read receipt update")
	}
	return stored, nil
}
