package ratelimit

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/taxledger/internal/config"
)

const keyTenantRequests = "taxledger:ratelimit:tenant:%s"

// TenantLimiter meters API requests per tenant. A nil limiter allows
// everything.
type TenantLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewTenantLimiter(cfg config.Config, client *redis.Client) (*TenantLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if limitCfg.TenantRate <= 0 || limitCfg.TenantBurst <= 0 {
		return nil, errors.New("tenant rate limit must be positive")
	}
	return &TenantLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.TenantRate,
		burst:  limitCfg.TenantBurst,
	}, nil
}

func (l *TenantLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *TenantLimiter) Allow(ctx context.Context, tenantID snowflake.ID) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyTenantRequests, tenantID.String()), l.rate, l.burst)
}
