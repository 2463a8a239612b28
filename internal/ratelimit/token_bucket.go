package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Tokens are returned as a string so fractional refills survive the
// Lua-to-RESP integer truncation.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), ts}
`

var (
	ErrLimiterNotConfigured = errors.New("rate_limiter_not_configured")
	ErrLimiterKeyEmpty      = errors.New("rate_limiter_key_empty")
	ErrLimiterInvalidRate   = errors.New("rate_limiter_invalid_rate")
	ErrLimiterBadResponse   = errors.New("rate_limiter_bad_response")
)

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*Result, error) {
	if t == nil || t.client == nil {
		return nil, ErrLimiterNotConfigured
	}
	if key == "" {
		return nil, ErrLimiterKeyEmpty
	}
	if rate <= 0 || burst <= 0 {
		return nil, ErrLimiterInvalidRate
	}

	ttl := bucketTTL(rate, burst)
	res, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, ttl.Milliseconds()).Slice()
	if err != nil {
		return nil, err
	}
	if len(res) < 3 {
		return nil, ErrLimiterBadResponse
	}
	return buildResult(toInt(res[0]) == 1, toFloat(res[1]), rate, burst), nil
}

func buildResult(allowed bool, remaining, rate float64, burst int) *Result {
	result := &Result{
		Allowed:   allowed,
		Limit:     burst,
		Remaining: int(math.Max(0, math.Floor(remaining))),
	}
	if !allowed && rate > 0 {
		if needed := 1.0 - remaining; needed > 0 {
			result.RetryAfter = time.Duration(needed / rate * float64(time.Second))
		}
	}
	return result
}

// bucketTTL keeps an idle bucket around for twice its full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func toInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		parsed, _ := strconv.ParseInt(val, 10, 64)
		return parsed
	default:
		return 0
	}
}

func toFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	case string:
		parsed, _ := strconv.ParseFloat(val, 64)
		return parsed
	default:
		return 0
	}
}
