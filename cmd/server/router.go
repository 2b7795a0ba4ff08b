// List of all REST API endpoints being used by Stockpile realtime can be found here.

package main

import (
	"Stockpile/internal/auth"
	"Stockpile/internal/events"
	"Stockpile/internal/gateway"
	"Stockpile/internal/metrics"
	"Stockpile/internal/user"
	"Stockpile/pkg/log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// apis groups the services the REST handlers are built from.
type apis struct {
	users         user.Service
	validator     auth.Validator
	gateway       *gateway.Gateway
	notifications *events.Notifications
	eventsRepo    events.Repository
	metrics       metrics.Service
}

func Router(router *gin.Engine, logger log.Logger, a apis) {
	// This is the route to default path
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to Stockpile realtime!")
	})

	authWithAcc := auth.AuthMiddleware(logger, a.validator)
	user.APIHandlers(router, a.users, authWithAcc, logger)
	gateway.APIHandlers(router, a.gateway, authWithAcc, logger)
	events.APIHandlers(router, a.notifications, a.eventsRepo, authWithAcc, logger)
	metrics.APIHandlers(router, a.metrics, authWithAcc, logger)
}
