// RedisStore is the shared-store Timestamp Store variant: it backs
// the Store interface with Redis, using a sorted set per resource
// key. The score is the entry's Unix timestamp as a floating-point
// wall-clock second; the member carries the weight and a nonce so
// same-timestamp entries never collide. Prune + count + conditional
// add is executed as a single Lua script so the sequence is atomic
// with respect to other clients touching the same key.

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type RedisStore struct {
	client *redis.Client
	config RedisConfig
	seq    uint64
}

// RedisConfig holds the connection settings for the shared store.
type RedisConfig struct {
	// URL is the Redis connection string, e.g. redis://host:6379/0.
	URL string

	// KeyPrefix namespaces every key this store touches, e.g. the
	// default "rate_limiter:<key>" key-space convention.
	KeyPrefix string

	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns sensible defaults for a rate limiter's
// Redis connection.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		URL:          "redis://localhost:6379/0",
		KeyPrefix:    "rate_limiter:",
		PoolSize:     50,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisStore connects to Redis and verifies reachability.
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	log.Info().
		Str("component", "ratelimit_store").
		Str("url", maskRedisURL(config.URL)).
		Int("pool_size", config.PoolSize).
		Msg("Initializing shared rate limiter store")

	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis URL: %v", ErrInvalidLimitSpec, err)
	}

	opt.PoolSize = config.PoolSize
	opt.MinIdleConns = config.MinIdleConns
	opt.MaxRetries = config.MaxRetries
	opt.DialTimeout = config.DialTimeout
	opt.ReadTimeout = config.ReadTimeout
	opt.WriteTimeout = config.WriteTimeout

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}

	log.Info().
		Str("component", "ratelimit_store").
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Msg("Shared rate limiter store ready")

	return &RedisStore{client: client, config: config}, nil
}

// Close releases the connection pool.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

func (rs *RedisStore) namespaced(key string) string {
	return rs.config.KeyPrefix + key
}

// CheckAndAdmit runs the atomic prune+count+conditional-add script.
//
// Scores are Unix seconds as a float64, not nanoseconds: Redis
// stores scores as a double, and nanosecond-magnitude Unix timestamps
// (~1.8e18) already exceed a double's ~2^53 exact-integer range,
// which would corrupt ordering. Keeping the score in seconds leaves
// the fractional part - sub-second precision - well inside that
// range.
func (rs *RedisStore) CheckAndAdmit(ctx context.Context, key string, cutoff, now time.Time, limit, weight float64) (AdmitResult, error) {
	redisKey := rs.namespaced(key)
	nowSeconds := float64(now.UnixNano()) / 1e9
	cutoffSeconds := float64(cutoff.UnixNano()) / 1e9
	seq := atomic.AddUint64(&rs.seq, 1)
	member := fmt.Sprintf("%d:%g:%d", now.UnixNano(), weight, seq)

	raw, err := rs.client.Eval(ctx, slidingWindowScript, []string{redisKey},
		cutoffSeconds, nowSeconds, limit, weight, member,
	).Result()
	if err != nil {
		return AdmitResult{}, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}

	arr, ok := raw.([]interface{})
	if !ok || len(arr) != 3 {
		return AdmitResult{}, fmt.Errorf("%w: unexpected script result shape", ErrBackendInconsistent)
	}

	admittedN, err1 := toInt64(arr[0])
	loadRaw, err2 := toFloat64(arr[1])
	oldestSeconds, err3 := toFloat64(arr[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return AdmitResult{}, fmt.Errorf("%w: could not parse script result", ErrBackendInconsistent)
	}

	result := AdmitResult{
		Admitted: admittedN == 1,
		Load:     loadRaw,
	}
	if oldestSeconds > 0 {
		result.Oldest = secondsToTime(oldestSeconds)
		result.HasOldest = true
	}
	if result.Admitted {
		result.Token = member
	}
	return result, nil
}

func secondsToTime(seconds float64) time.Time {
	whole := int64(seconds)
	frac := seconds - float64(whole)
	return time.Unix(whole, int64(frac*1e9))
}

// Remove deletes one member from the sorted set by its exact value,
// used by the Resource Manager's rollback. Best-effort: if the member
// already aged out, ZREM simply reports zero removed and that is not
// an error.
func (rs *RedisStore) Remove(ctx context.Context, key string, token string) error {
	if token == "" {
		return nil
	}
	redisKey := rs.namespaced(key)
	if err := rs.client.ZRem(ctx, redisKey, token).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	return nil
}

// Load sums weights of entries scored >= cutoff without mutating the set.
func (rs *RedisStore) Load(ctx context.Context, key string, cutoff time.Time) (float64, error) {
	redisKey := rs.namespaced(key)
	cutoffSeconds := float64(cutoff.UnixNano()) / 1e9
	members, err := rs.client.ZRangeByScore(ctx, redisKey, &redis.ZRangeBy{
		Min: strconv.FormatFloat(cutoffSeconds, 'f', -1, 64),
		Max: "+inf",
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	var sum float64
	for _, m := range members {
		sum += weightOf(m)
	}
	return sum, nil
}

// Oldest returns the smallest-scored surviving member's timestamp.
func (rs *RedisStore) Oldest(ctx context.Context, key string) (time.Time, bool, error) {
	redisKey := rs.namespaced(key)
	results, err := rs.client.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	if len(results) == 0 {
		return time.Time{}, false, nil
	}
	return secondsToTime(results[0].Score), true, nil
}

// Clear removes the whole series for key.
func (rs *RedisStore) Clear(ctx context.Context, key string) error {
	if err := rs.client.Del(ctx, rs.namespaced(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	return nil
}

// AllKeys scans the key-space for every series this store owns. This
// is a diagnostic operation (used by BackendInfo's key_count and the
// idle-key-growth demonstration) - it is not called on the hot path.
func (rs *RedisStore) AllKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := rs.client.Scan(ctx, 0, rs.config.KeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), rs.config.KeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	return keys, nil
}

// ReportMemory returns Redis's own memory usage estimate, summed
// across every key this store owns. Keys whose MEMORY USAGE lookup
// fails are left out of the sum; there is no fallback to a key count.
func (rs *RedisStore) ReportMemory(ctx context.Context) (int64, error) {
	keys, err := rs.AllKeys(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, k := range keys {
		n, err := rs.client.MemoryUsage(ctx, rs.namespaced(k)).Result()
		if err != nil {
			continue
		}
		total += n
	}
	return total, nil
}

// Variant identifies this backend for BackendInfo.
func (rs *RedisStore) Variant() string { return "redis" }

// Ping checks reachability.
func (rs *RedisStore) Ping(ctx context.Context) error {
	if err := rs.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	return nil
}

// weightOf extracts the weight encoded in a member of shape
// "<nanos>:<weight>:<nonce>".
func weightOf(member string) float64 {
	parts := strings.SplitN(member, ":", 3)
	if len(parts) < 2 {
		return 1
	}
	w, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 1
	}
	return w
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

// maskRedisURL hides credentials from log lines.
func maskRedisURL(url string) string {
	if url == "" {
		return url
	}
	return "redis://***"
}

// slidingWindowScript implements the atomic prune+count+conditional-add
// over a sorted set whose score is the entry's Unix timestamp in
// fractional seconds and whose member payload is "<nanos>:<weight>:<nonce>".
//
// Weighted entries cannot use ZCARD for counting (a request worth 40
// tokens still counts as one member), so the script sums the weight
// component of every surviving member's payload.
//
// KEYS[1]: the sorted set for this resource key
// ARGV[1]: cutoff (Unix seconds, float) - entries older than this are pruned
// ARGV[2]: now (Unix seconds, float) - the score for a newly admitted entry
// ARGV[3]: limit (N)
// ARGV[4]: weight of this call
// ARGV[5]: member to add if admitted ("<nanos>:<weight>:<nonce>")
//
// Returns {admitted (0/1), load_after, oldest_timestamp_seconds}.
const slidingWindowScript = `
local key = KEYS[1]
local cutoff = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local weight = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. cutoff)

local members = redis.call('ZRANGE', key, 0, -1)
local load = 0
for _, m in ipairs(members) do
    local parts = {}
    for part in string.gmatch(m, '([^:]+)') do
        table.insert(parts, part)
    end
    load = load + tonumber(parts[2])
end

local admitted = 0
if load + weight <= limit then
    redis.call('ZADD', key, now, member)
    load = load + weight
    admitted = 1
end

local oldest = 0
local head = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #head > 0 then
    oldest = tonumber(head[2])
end

return {admitted, tostring(load), oldest}
`
