// Exposes the REST APIs of the domain event handlers in Stockpile: admin system alerts and the recent-activity feed.

package events

import (
	"Stockpile/internal/auth"
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/pkg/log"
	"net/http"
	"strconv"

	"github.com/asaskevich/govalidator"
	"github.com/gin-gonic/gin"
)

// Registers all of the REST API handlers related to internal package events onto the gin server.
// Both endpoints need an admin.
func APIHandlers(router *gin.Engine, notifications *Notifications, repo Repository, authWithAcc gin.HandlerFunc, logger log.Logger) {
	realtimeGroup := router.Group("/api/realtime", authWithAcc, auth.RequireRole(logger, entity.RoleAdmin))
	{
		realtimeGroup.POST("/alert", systemAlert(notifications, logger))
		realtimeGroup.GET("/activity", recentActivity(repo, logger))
	}
}

// systemAlert returns a handler which pushes a system-wide alert to every connection.
func systemAlert(notifications *Notifications, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		var alert entity.SystemAlert

		// Serialize received data into SystemAlert struct
		if binderr := gctx.ShouldBindJSON(&alert); binderr != nil {
			// Error occured during serialization
			logger.WithCtx(gctx).Warn().Err(binderr).Msg("Binding error occured with SystemAlert struct.")
			gctx.JSON(http.StatusUnprocessableEntity, errors.UnprocessableEntity(""))
			return
		}
		if _, valerr := govalidator.ValidateStruct(alert); valerr != nil {
			validationErrors, ok := valerr.(govalidator.Errors)
			if !ok {
				gctx.JSON(http.StatusBadRequest, errors.BadRequest(valerr.Error()))
				return
			}
			resp := errors.GenerateValidationErrorResponse(validationErrors.Errors())
			gctx.JSON(resp.Status, resp)
			return
		}
		notifications.SystemAlert(alert)
		gctx.Status(http.StatusAccepted)
	}
}

// recentActivity returns a handler listing the newest activity entries of the admin's organization.
func recentActivity(repo Repository, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		principal, ok := gctx.Value("Principal").(entity.Principal)
		if !ok {
			// Type assertion error
			logger.WithCtx(gctx).Error().Msg("Type assertion error in events.recentActivity")
			gctx.JSON(http.StatusInternalServerError, errors.InternalServerError(""))
			return
		}
		limit, err := strconv.ParseInt(gctx.DefaultQuery("limit", "0"), 10, 64)
		if err != nil {
			gctx.JSON(http.StatusBadRequest, errors.BadRequest("limit must be a number"))
			return
		}
		entries, err := repo.RecentActivity(gctx, logger, principal.OrganizationID, limit)
		if err != nil {
			// Error occured, might be validation or server error
			resp, ok := err.(errors.ErrorResponse)
			if !ok {
				gctx.JSON(http.StatusInternalServerError, errors.InternalServerError(""))
				return
			}
			gctx.JSON(resp.Status, resp)
			return
		}
		gctx.JSON(http.StatusOK, gin.H{
			"activity": entries,
		})
	}
}
