// Service layer of the internal package metrics.

package metrics

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/gateway"
	"Stockpile/pkg/log"
	"context"
	"sync"
	"time"
)

// Source is where an instance reads its own counters from. *gateway.Gateway satisfies it.
type Source interface {
	Stats() gateway.Stats
}

// Service layer of internal package metrics which periodically publishes the counters of this instance.
type Service interface {
	// get the metrics of every live instance, summed up
	GetMetrics(ctx context.Context) (entity.Metrics, error)
	// publish the current counters of this instance once
	Report(ctx context.Context) error
	// publish on every tick until ctx is done or Cleanup is called
	Run(ctx context.Context)
	// stop Run and remove this instance's metrics
	Cleanup(ctx context.Context) error
}

// Object of this will be passed around from main to routers to API.
// Helps to access the service layer interface and call methods.
type service struct {
	source      Source
	metricsRepo Repository
	interval    time.Duration
	logger      log.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewService(source Source, metricsRepo Repository, interval time.Duration, logger log.Logger) Service {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &service{
		source:      source,
		metricsRepo: metricsRepo,
		interval:    interval,
		logger:      logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (s *service) GetMetrics(ctx context.Context) (entity.Metrics, error) {
	return s.metricsRepo.GetMetrics(ctx, s.logger)
}

func (s *service) Report(ctx context.Context) error {
	stats := s.source.Stats()
	metrics := entity.Metrics{
		ActiveConnections: stats.Connections,
		OnlinePrincipals:  stats.Principals,
		Rooms:             stats.Rooms,
		RelayConnected:    stats.RelayConnected,
	}
	// A crashed instance drops out after three missed ticks
	return s.metricsRepo.SetOrUpdateMetrics(ctx, s.logger, stats.InstanceID, &metrics, 3*s.interval)
}

func (s *service) Run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithCtx(ctx).Info().Dur("interval", s.interval).Msg("Launching metrics reporter")
	// this is for initial report
	s.report(ctx)
	for {
		select {
		case <-ticker.C:
			s.report(ctx)
		case <-s.stop:
			s.logger.WithCtx(ctx).Info().Msg("Successfully stopped metrics reporter")
			return
		case <-ctx.Done():
			return
		}
	}
}

// report runs Report for the ticker. A failed tick is retried on the next one.
func (s *service) report(ctx context.Context) {
	if err := s.Report(ctx); err != nil {
		s.logger.WithCtx(ctx).Debug().Err(err).Msg("Metrics report skipped, retrying on next tick")
	}
}

func (s *service) Cleanup(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.metricsRepo.DelMetrics(ctx, s.logger, s.source.Stats().InstanceID)
}
