// The main file of Stockpile realtime.

package main

import (
	"Stockpile/internal/auth"
	"Stockpile/internal/config"
	"Stockpile/internal/events"
	"Stockpile/internal/gateway"
	"Stockpile/internal/metrics"
	"Stockpile/internal/relay"
	"Stockpile/internal/user"
	"Stockpile/pkg/cleanup"
	"Stockpile/pkg/db"
	"Stockpile/pkg/globalcontext"
	"Stockpile/pkg/log"
	"Stockpile/pkg/middlewares"
	"Stockpile/pkg/validations"
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	// Loading up the .env file in DEV environment.
	if os.Getenv("ENV") == "DEV" {
		if err := config.LoadDevConfig("config/dev.env"); err != nil {
			log.New("unknown").Warn().Err(err).Msg("Couldn't load config/dev.env, using the process environment.")
		}
	}
	cfg, err := config.Load()
	if err != nil {
		log.New("unknown").Fatal().Err(err).Msg("Couldn't load configuration.")
	}
	logger := log.New(cfg.Version)
	logger.Info().Msgf("Welcome to Stockpile realtime: v%s", cfg.Version)
	logger.Info().Str("instance", cfg.InstanceID).Msgf("Stockpile Environment: %s", cfg.Env)

	// This is the preferred mode used by gin server in DEV environment.
	if cfg.Env == "DEV" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	validations.RegisterCustomValidations()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConnWrp, err := db.NewDbConnection(ctx, logger, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("Couldn't create the redis client.")
	}
	// Sending a PING request to DB for connection status check.
	if err := dbConnWrp.CheckDbConnection(ctx, logger); err != nil {
		logger.Fatal().Err(err).Msg("Redis client couldn't PING the redis-server.")
	}

	userRepo := user.NewRepository(dbConnWrp)
	sessionRepo := auth.NewRepository(dbConnWrp)
	validator := auth.NewValidator(cfg.AccessSecret, sessionRepo, userRepo, logger)

	gw := gateway.New(gateway.Options{
		InstanceID:     cfg.InstanceID,
		PingInterval:   cfg.PingInterval,
		MaxMissedPings: cfg.MaxMissedPings,
		SendBuffer:     cfg.SendBuffer,
		MaxMessageSize: cfg.MaxMessageSize,
		AllowedOrigin:  cfg.CORSOrigin,
	}, validator, nil, logger)

	bus := relay.New(dbConnWrp, relay.Options{
		InstanceID: cfg.InstanceID,
		Prefix:     cfg.RelayPrefix,
		QueueSize:  cfg.RelayQueueSize,
		MaxBackoff: cfg.RelayBackoff,
	}, logger)
	gw.SetPublisher(bus)
	go func() {
		if err := bus.Run(ctx, gw); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("Relay stopped")
		}
	}()

	eventsRepo := events.NewRepository(dbConnWrp, cfg.ActivityLimit)
	inventory := events.NewInventory(gw, logger)
	users := events.NewUsers(gw, eventsRepo, logger)
	notifications := events.NewNotifications(gw, eventsRepo, logger)
	gw.Mount(inventory, users, notifications)

	metricsSrv := metrics.NewService(gw, metrics.NewRepository(dbConnWrp, cfg.RelayPrefix), cfg.MetricsInterval, logger)
	go metricsSrv.Run(ctx)

	// Initializing the gin server.
	server := gin.New()
	// Forcing gin to use custom Logger instead of the default one.
	server.Use(log.LoggerGinExtension(logger))
	server.Use(gin.Recovery())
	server.Use(middlewares.CORSMiddleware(cfg.CORSOrigin))
	server.Use(middlewares.CorrelationMiddleware())
	server.Use(globalcontext.UniqueIDMiddleware(logger))

	// Routes all of the REST API groups and paths.
	Router(server, logger, apis{
		users:         user.NewService(userRepo, logger),
		validator:     validator,
		gateway:       gw,
		notifications: notifications,
		eventsRepo:    eventsRepo,
		metrics:       metricsSrv,
	})

	// Running the server with defined addr and port.
	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.SrvAddr, cfg.SrvPort),
		Handler: server,
	}

	// ListenAndServe is a blocking operation, putting it a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Gin server stopped.")
		}
	}()

	// Graceful shutdown of Stockpile server triggered due to system interruptions.
	wait := cleanup.GracefulShutdown(ctx, logger, 10*time.Second, map[string]cleanup.Operation{
		"Realtime": func(ctx context.Context) error {
			// Clients are told to go away before the bus is dropped
			if err := gw.Shutdown(ctx); err != nil {
				return err
			}
			return bus.Close(ctx)
		},
		"Metrics": func(ctx context.Context) error {
			return metricsSrv.Cleanup(ctx)
		},
		"Gin": func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
	<-wait

	// The redis client outlives every other operation, they all need it.
	if err := dbConnWrp.CloseDbConnection(ctx); err != nil {
		logger.Error().Err(err).Msg("Redis-server shutdown failed.")
	}
}
