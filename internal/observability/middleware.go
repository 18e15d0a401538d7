package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// quietPaths are polled by probes and scrapers; they log at debug.
var quietPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// AdminRequests logs and counts every admin HTTP request for node.
func AdminRequests(node string, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		RecordHTTPRequest(node, c.Request.Method, route, status, elapsed)

		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = logger.Error()
		case status >= 400:
			ev = logger.Warn()
		default:
			if _, quiet := quietPaths[route]; quiet {
				ev = logger.Debug()
			} else {
				ev = logger.Info()
			}
		}
		ev.Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("remote", c.ClientIP()).
			Msg("server.Request")
	}
}
