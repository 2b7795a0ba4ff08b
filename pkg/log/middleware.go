// This middleware is used to integrate the zerolog wrapper created in logger.go into gin server.

package log

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// LoggerGinExtension forces gin to log requests through Logger instead of its default writer.
// Websocket upgrades are logged once the connection closes, so their latency is the session length.
func LoggerGinExtension(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now() // Start timer
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" && c.Query("token") == "" {
			// never log credentials passed as query parameters
			path = path + "?" + raw
		}

		// Process request
		c.Next()

		latency := time.Since(start)
		if latency > time.Minute {
			latency = latency.Truncate(time.Second)
		}

		var event *zerolog.Event
		status := c.Writer.Status()
		switch {
		case status >= 500:
			event = logger.WithCtx(c).Error()
		case status >= 400:
			event = logger.WithCtx(c).Warn()
		default:
			event = logger.WithCtx(c).Info()
		}
		event.
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("error", c.Errors.ByType(gin.ErrorTypePrivate).String()).
			Msg("request handled")
	}
}
