package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTTL is how long an untouched failure entry is kept.
const RedisTTL = 7 * 24 * time.Hour

// Redis keeps the ledger in hashes under askmail:failure:<key>.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing ledger redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to ledger redis: %w", err)
	}

	return &Redis{client: client, ttl: RedisTTL, now: time.Now}, nil
}

func redisKey(key string) string {
	return "askmail:failure:" + key
}

func (r *Redis) RecordFailure(ctx context.Context, key, reason string) (int, error) {
	k := redisKey(key)
	now := strconv.FormatInt(r.now().Unix(), 10)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, k, "attempts", 1)
		pipe.HSetNX(ctx, k, "first_failed_at", now)
		pipe.HSet(ctx, k, "last_error", reason, "last_failed_at", now)
		pipe.Expire(ctx, k, r.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("recording failure for %s: %w", key, err)
	}
	return int(incr.Val()), nil
}

func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	fields, err := r.client.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading ledger entry %s: %w", key, err)
	}
	if len(fields) == 0 {
		return Entry{}, false, nil
	}

	attempts, _ := strconv.Atoi(fields["attempts"])
	first, _ := strconv.ParseInt(fields["first_failed_at"], 10, 64)
	last, _ := strconv.ParseInt(fields["last_failed_at"], 10, 64)
	return Entry{
		Key:         key,
		Attempts:    attempts,
		LastError:   fields["last_error"],
		FirstFailed: time.Unix(first, 0),
		LastFailed:  time.Unix(last, 0),
	}, true, nil
}

func (r *Redis) Clear(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("clearing ledger entry %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
