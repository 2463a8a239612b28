package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware records request counts and latency per matched route.
func GinMiddleware(m *PrometheusMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPIRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
