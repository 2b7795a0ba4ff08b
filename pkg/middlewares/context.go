package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
)

// CorrelationHeader carries the correlation id between services and back to the client.
const CorrelationHeader = "X-Correlation-ID"

// CorrelationMiddleware populates every incoming request's context with a correlation id.
// An id sent by an upstream service is kept so one chain of events can be followed across instances.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(gctx *gin.Context) {
		correlationID := gctx.GetHeader(CorrelationHeader)
		if _, err := xid.FromString(correlationID); err != nil {
			correlationID = xid.New().String()
		}
		gctx.Set("correlation_id", correlationID)
		gctx.Writer.Header().Set(CorrelationHeader, correlationID)
		gctx.Next()
	}
}
