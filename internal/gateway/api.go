// Exposes the realtime handshake endpoint and the gateway status in Stockpile.

package gateway

import (
	"Stockpile/internal/auth"
	"Stockpile/internal/errors"
	"Stockpile/pkg/log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Registers all of the REST API handlers related to internal package gateway onto the gin server.
// The websocket endpoint authenticates by itself during the handshake.
func APIHandlers(router *gin.Engine, gw *Gateway, authWithAcc gin.HandlerFunc, logger log.Logger) {
	realtimeGroup := router.Group("/api/realtime")
	{
		realtimeGroup.GET("/ws", handshake(gw, logger))
		realtimeGroup.GET("/status", authWithAcc, status(gw))
	}
}

// handshake validates the credential before upgrading. A rejected handshake never registers anything.
func handshake(gw *Gateway, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		principal, err := gw.Authenticate(gctx, auth.CredentialFromRequest(gctx.Request, true))
		if err != nil {
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, errors.Unauthorized(errors.ErrUnauthenticated.Reason()))
			return
		}
		ws, err := gw.upgrader.Upgrade(gctx.Writer, gctx.Request, nil)
		if err != nil {
			// Upgrader has already replied to the client
			logger.WithCtx(gctx).Warn().Err(err).Msg("Websocket upgrade failed in gateway.handshake")
			return
		}
		c := NewConnection(principal, ws, gw.opts.SendBuffer, gw.logger.WithCtx(gctx))
		if err := gw.Connect(c); err != nil {
			_ = ws.Close()
			return
		}
		go c.writePump(gw.opts.PingInterval)
		// One task per connection: this goroutine reads until the client goes away.
		c.readPump(gw)
	}
}

func status(gw *Gateway) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		gctx.JSON(http.StatusOK, gin.H{
			"status": gw.Stats(),
		})
	}
}
