package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// This middleware handles CORS policy for Stockpile server.
// Websocket handshakes are plain GETs, so they pass through untouched apart from the headers.
func CORSMiddleware(origin string) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		header := gctx.Writer.Header()
		header.Set("Access-Control-Allow-Origin", origin)
		header.Set("Vary", "Origin")
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Correlation-ID")
		header.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if gctx.Request.Method == http.MethodOptions {
			gctx.AbortWithStatus(http.StatusNoContent)
			return
		}

		gctx.Next()
	}
}
