package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pledgerhq/pledger/pkg/metrics"
)

// unmatchedRoute labels requests that hit no registered route. Using the raw
// URL path there would let probing clients mint unbounded label values.
const unmatchedRoute = "unmatched"

// Metrics records per-route request latency.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		status := strconv.Itoa(c.Writer.Status())
		metrics.APILatency.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}
