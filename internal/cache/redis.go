package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "opensplit:balances:"

// Redis is a BalanceCache shared by every server instance.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to redisURL (redis://host:port/db) and pings it.
func NewRedis(ctx context.Context, redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func entryKey(groupID string) string { return redisKeyPrefix + groupID }
func genKey(groupID string) string   { return redisKeyPrefix + "gen:" + groupID }

func (c *Redis) Get(ctx context.Context, groupID string) (*Entry, uint64, bool, error) {
	vals, err := c.client.MGet(ctx, entryKey(groupID), genKey(groupID)).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to read balances: %w", err)
	}
	gen, err := parseGen(vals[1])
	if err != nil {
		return nil, 0, false, err
	}
	data, ok := vals[0].(string)
	if !ok {
		return nil, gen, false, nil
	}
	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, gen, false, fmt.Errorf("failed to decode balances: %w", err)
	}
	return &entry, gen, true, nil
}

// Set writes the entry in a transaction watching the generation key, so an
// Invalidate from any instance that lands first wins.
func (c *Redis) Set(ctx context.Context, groupID string, gen uint64, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode balances: %w", err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey(groupID)).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, entryKey(groupID), data, c.ttl)
			return nil
		})
		return err
	}, genKey(groupID))
	if errors.Is(err, redis.TxFailedErr) {
		// Invalidated while we were writing.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to store balances: %w", err)
	}
	return nil
}

func (c *Redis) Invalidate(ctx context.Context, groupID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(groupID))
		pipe.Del(ctx, entryKey(groupID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate balances: %w", err)
	}
	return nil
}

func parseGen(v any) (uint64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	gen, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid balance generation %q: %w", s, err)
	}
	return gen, nil
}

// Close closes the client.
func (c *Redis) Close() error {
	return c.client.Close()
}
