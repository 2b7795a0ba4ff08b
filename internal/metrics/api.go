// Exposes the REST API of realtime metrics in Stockpile.

package metrics

import (
	"Stockpile/internal/errors"
	"Stockpile/pkg/log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Registers all of the REST API handlers related to internal package metrics onto the gin server.
func APIHandlers(router *gin.Engine, service Service, authWithAcc gin.HandlerFunc, logger log.Logger) {
	metricsGroup := router.Group("/api/realtime")
	{
		metricsGroup.GET("/metrics", authWithAcc, getMetrics(service, logger))
	}
}

// getMetrics returns a handler which sums up the metrics of every live instance.
// requires auth to access.
func getMetrics(service Service, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		metrics, err := service.GetMetrics(gctx)
		if err != nil {
			resp, ok := err.(errors.ErrorResponse)
			if !ok {
				// Type assertion error
				logger.WithCtx(gctx).Error().Err(err).Msg("Type assertion error in metrics.getMetrics")
				gctx.JSON(http.StatusInternalServerError, errors.InternalServerError(""))
				return
			}
			gctx.JSON(resp.Status, resp)
			return
		}
		gctx.JSON(http.StatusOK, gin.H{
			"metrics": metrics,
		})
	}
}
