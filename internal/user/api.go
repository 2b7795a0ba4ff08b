// Exposes all of the REST APIs related to User Model in Stockpile.

package user

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/pkg/log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Registers all of the REST API handlers related to internal package user onto the gin server.
func APIHandlers(router *gin.Engine, service Service, authWithAcc gin.HandlerFunc, logger log.Logger) {
	usergroup := router.Group("/api/user")
	{
		usergroup.GET("/me", authWithAcc, getUser(service, logger))
	}
}

// getUser returns a handler which takes care of getting user details in Stockpile.
// requires auth to access.
func getUser(service Service, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		principal, ok := gctx.Value("Principal").(entity.Principal)
		if !ok {
			// Type assertion error
			logger.WithCtx(gctx).Error().Msg("Type assertion error in user.getUser")
			gctx.JSON(http.StatusInternalServerError, errors.InternalServerError(""))
			return
		}
		user, err := service.getuser(gctx, principal)
		if err != nil {
			// Error occured, might be validation or server error
			resp, ok := err.(errors.ErrorResponse)
			if !ok {
				// Type assertion error
				gctx.JSON(http.StatusInternalServerError, errors.InternalServerError(""))
				return
			}
			gctx.JSON(resp.Status, resp)
			return
		}
		gctx.JSON(http.StatusOK, gin.H{
			"user": user,
		})
	}
}
