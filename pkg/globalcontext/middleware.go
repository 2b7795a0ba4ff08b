// Context middleware is used in gin to populate request context with unique ID.
// This ID will be helpful in debugging issues happening for a request in handler chain.

package globalcontext

import (
	"Stockpile/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UniqueIDMiddleware populates every incoming request's context with a random UUID under "ReqID".
// log.Logger.WithCtx picks it up, so a websocket session logs under the ReqID of its handshake.
func UniqueIDMiddleware(logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		rqID, uuiderr := uuid.NewRandom()
		if uuiderr != nil {
			logger.Error().Err(uuiderr).Msg("Error during generating UUID for ReqID.")
		} else {
			gctx.Set("ReqID", rqID.String())
			gctx.Writer.Header().Set("X-Request-ID", rqID.String())
		}
		gctx.Next()
	}
}
