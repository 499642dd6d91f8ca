// Package cache keeps recent chat threads in Redis so repeated full-thread
// reads skip MySQL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/medconcierge/internal/config"
	"github.com/iliyamo/medconcierge/internal/model"
)

// A thread is a Redis list of JSON messages, oldest first. A key exists
// only while it holds the complete thread; threads longer than Size are
// not cached at all.
//
// Every post bumps a per-thread generation, cached or not. A fill carries
// the generation read before its database query and is discarded when a
// post landed in between.
var appendScript = redis.NewScript(`
	redis.call('INCR', KEYS[2])
	redis.call('PEXPIRE', KEYS[2], ARGV[3])
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return 0
	end
	if redis.call('LLEN', KEYS[1]) >= tonumber(ARGV[2]) then
		redis.call('DEL', KEYS[1])
		return 0
	end
	redis.call('RPUSH', KEYS[1], ARGV[1])
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
	return 1
`)

var fillScript = redis.NewScript(`
	local gen = tonumber(redis.call('GET', KEYS[2]) or '0')
	if gen ~= tonumber(ARGV[1]) then
		return 0
	end
	redis.call('DEL', KEYS[1])
	for i = 3, #ARGV do
		redis.call('RPUSH', KEYS[1], ARGV[i])
	end
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	return 1
`)

type ChatCache struct {
	rdb    *redis.Client
	prefix string
	size   int
	ttl    time.Duration
}

func NewChatCache(rdb *redis.Client, cfg config.ChatConfig) *ChatCache {
	size, ttl := cfg.CacheSize, cfg.CacheTTL
	if size <= 0 {
		size = 200
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ChatCache{rdb: rdb, prefix: "chat", size: size, ttl: ttl}
}

func (c *ChatCache) key(applicationID uint64) string {
	return c.prefix + ":thread:" + strconv.FormatUint(applicationID, 10)
}

func (c *ChatCache) genKey(applicationID uint64) string {
	return c.prefix + ":gen:" + strconv.FormatUint(applicationID, 10)
}

// Generation returns the post counter of a thread. Read it before loading
// the thread from the database and hand it to Fill.
func (c *ChatCache) Generation(ctx context.Context, applicationID uint64) (int64, error) {
	gen, err := c.rdb.Get(ctx, c.genKey(applicationID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Recent returns the cached thread; ok is false on a miss.
func (c *ChatCache) Recent(ctx context.Context, applicationID uint64) ([]model.Message, bool, error) {
	raw, err := c.rdb.LRange(ctx, c.key(applicationID), 0, -1).Result()
	if err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	out := make([]model.Message, 0, len(raw))
	for _, s := range raw {
		var m model.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			_ = c.rdb.Del(ctx, c.key(applicationID)).Err()
			return nil, false, fmt.Errorf("decode cached message: %w", err)
		}
		out = append(out, m)
	}
	return out, true, nil
}

// Fill replaces the cached thread with msgs unless a message was
// appended since gen was read.
func (c *ChatCache) Fill(ctx context.Context, applicationID uint64, gen int64, msgs []model.Message) error {
	key := c.key(applicationID)
	if len(msgs) == 0 || len(msgs) > c.size {
		return c.rdb.Del(ctx, key).Err()
	}
	args := make([]any, 0, len(msgs)+2)
	args = append(args, gen, c.ttl.Milliseconds())
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		args = append(args, b)
	}
	return fillScript.Run(ctx, c.rdb, []string{key, c.genKey(applicationID)}, args...).Err()
}

// Append adds m to a cached thread. A missing thread stays missing and a
// full one is dropped, so the next read refills it from the database.
func (c *ChatCache) Append(ctx context.Context, applicationID uint64, m model.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return appendScript.Run(ctx, c.rdb, []string{c.key(applicationID), c.genKey(applicationID)},
		b, c.size, c.ttl.Milliseconds()).Err()
}
