package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/taxledger/pkg/tenantctx"
	"go.uber.org/zap"
)

// HeaderTenant carries the tenant id resolved by the upstream gateway.
const HeaderTenant = "X-Tenant-ID"

// TenantRequired copies the tenant id header onto the request context and
// rejects requests without a valid one.
func TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderTenant))
		tenantID, err := snowflake.ParseString(raw)
		if raw == "" || err != nil || tenantID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func tenantFromContext(c *gin.Context) (snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantID(c.Request.Context())
	if !ok {
		return 0, ErrUnauthorized
	}
	return tenantID, nil
}

// tenantRateLimit applies the per-tenant token bucket. Redis failures are
// logged and the request is let through.
func (s *Server) tenantRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		tenantID, err := tenantFromContext(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		result, err := s.limiter.Allow(c.Request.Context(), tenantID)
		if err != nil {
			s.log.Warn("tenant rate limit check failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retry := int(math.Ceil(result.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
