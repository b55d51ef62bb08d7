// Package redis provides a Redis-backed UsageStore for industrymatch.
//
// Counters live in one Redis hash per (model, UTC day). A Lua script
// performs the minute-rollover-aware increment atomically, so multiple
// limiter processes can share the counters without losing updates.
// Redis carries only the usage side; news items stay in the primary
// datastore.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/industrymatch"
)

// Store is a Redis-backed UsageStore.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ industrymatch.UsageStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "industrymatch:usage:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// New creates a new Redis-backed UsageStore.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "industrymatch:usage:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) usageKey(model, date string) string {
	return s.keyPrefix + model + ":" + date
}

// recordScript applies one request atomically.
// KEYS[1] = usage hash key
// ARGV[1] = tokens
// ARGV[2] = current minute-of-hour
// ARGV[3] = now (RFC 3339)
//
// Minute counters reset when the stored minute window differs from the
// current minute; daily counters always accumulate. Keys expire after
// two days; retention beyond the current day is not this store's job.
var recordScript = goredis.NewScript(`
local key = KEYS[1]
local tokens = tonumber(ARGV[1])
local minute = tonumber(ARGV[2])

local window = redis.call("HGET", key, "minute_window")
if window and tonumber(window) == minute then
    redis.call("HINCRBY", key, "requests_minute", 1)
    redis.call("HINCRBY", key, "tokens_minute", tokens)
else
    redis.call("HSET", key, "requests_minute", 1, "tokens_minute", tokens)
end

redis.call("HINCRBY", key, "requests_day", 1)
redis.call("HINCRBY", key, "tokens_day", tokens)
redis.call("HSET", key, "minute_window", minute, "last_request_at", ARGV[3])
redis.call("EXPIRE", key, 172800)
return 1
`)

// RecordUsage applies one request of tokens at now.
func (s *Store) RecordUsage(ctx context.Context, model string, tokens int64, now time.Time) error {
	now = now.UTC()
	key := s.usageKey(model, industrymatch.DateUTC(now))
	err := recordScript.Run(ctx, s.client, []string{key},
		tokens, now.Minute(), now.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("industrymatch/redis: record usage: %w", err)
	}
	return nil
}

// GetUsage returns the usage record for (model, date).
func (s *Store) GetUsage(ctx context.Context, model, date string) (industrymatch.UsageRecord, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.usageKey(model, date)).Result()
	if err != nil {
		return industrymatch.UsageRecord{}, false, fmt.Errorf("industrymatch/redis: get usage: %w", err)
	}
	if len(fields) == 0 {
		return industrymatch.UsageRecord{}, false, nil
	}

	rec := industrymatch.UsageRecord{Model: model, Date: date}
	rec.RequestsMinute = atoi(fields["requests_minute"])
	rec.TokensMinute = atoi64(fields["tokens_minute"])
	rec.RequestsDay = atoi(fields["requests_day"])
	rec.TokensDay = atoi64(fields["tokens_day"])
	rec.MinuteWindow = atoi(fields["minute_window"])
	if raw := fields["last_request_at"]; raw != "" {
		if t, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			rec.LastRequestAt = t
		}
	}
	return rec, true, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
