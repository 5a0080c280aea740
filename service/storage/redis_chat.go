package storage

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Conversation membership and history as maintained by the application
// service:
//
//	im:conv:<id>:members  SET  of user ids
//	im:conv:<id>:msgs     STREAM, server-assigned ids (unix-ms based),
//	                      field "from" = sender user id
//
// RedisChat answers the membership/counting questions of the presence core
// against those keys. It never writes them; the application service owns
// conversation and message persistence.
type RedisChat struct {
	rdb *redis.Client
}

func NewRedisChat(rdb *redis.Client) *RedisChat {
	return &RedisChat{rdb: rdb}
}

func membersKey(conversationID string) string { return "im:conv:" + conversationID + ":members" }
func msgsKey(conversationID string) string    { return "im:conv:" + conversationID + ":msgs" }

func (c *RedisChat) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, membersKey(conversationID), userID).Result()
	if err != nil {
		return false, errors.Wrap(err, "membership check")
	}
	return ok, nil
}

func (c *RedisChat) GetParticipants(ctx context.Context, conversationID string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, membersKey(conversationID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list participants")
	}
	return members, nil
}

// CountMessagesAfter counts stream entries newer than since (unix ms) that
// were not sent by userID. Stream ids are ms-based, so the exclusive lower
// bound is since+1.
func (c *RedisChat) CountMessagesAfter(ctx context.Context, conversationID, userID string, since int64) (int, error) {
	start := strconv.FormatInt(since+1, 10)
	msgs, err := c.rdb.XRange(ctx, msgsKey(conversationID), start, "+").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "count messages")
	}
	n := 0
	for _, m := range msgs {
		if from, _ := m.Values["from"].(string); from != userID {
			n++
		}
	}
	return n, nil
}
