// Metrics repository encapsulates the data access logic (interactions with the DB) related to realtime Metrics in Stockpile.

package metrics

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/pkg/db"
	"Stockpile/pkg/log"
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

type Repository interface {
	// Sum of the metrics every live instance reported
	GetMetrics(ctx context.Context, logger log.Logger) (entity.Metrics, error)
	// Set or Update the metrics of one instance, expiring after ttl unless refreshed
	SetOrUpdateMetrics(ctx context.Context, logger log.Logger, instanceID string, metrics *entity.Metrics, ttl time.Duration) error
	// Remove the metrics of one instance
	DelMetrics(ctx context.Context, logger log.Logger, instanceID string) error
}

// repository struct of metrics Repository.
// Object of this will be passed around from main to internal.
// Helps to access the repository layer interface and call methods.
type repository struct {
	db     *db.RedisDB
	prefix string
}

// Returns a new instance of metrics repository for other packages to access its interface.
func NewRepository(dbwrp *db.RedisDB, prefix string) Repository {
	if prefix == "" {
		prefix = "stockpile"
	}
	return repository{db: dbwrp, prefix: prefix}
}

func (r repository) metricsKey(instanceID string) string {
	return r.prefix + ":metrics:" + instanceID
}

func (r repository) GetMetrics(ctx context.Context, logger log.Logger) (entity.Metrics, error) {
	var total entity.Metrics
	var cursor uint64
	// Connected only while every instance is
	relayUp := true
	for {
		keys, next, dberr := r.db.Client().Scan(ctx, cursor, r.metricsKey("*"), 100).Result()
		if dberr != nil {
			// Error during interacting with DB
			logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.Scan() in metrics.GetMetrics")
			return entity.Metrics{}, errors.InternalServerError("")
		}
		for _, key := range keys {
			var instance entity.Metrics
			res := r.db.Client().HGetAll(ctx, key)
			if res.Err() != nil {
				logger.WithCtx(ctx).Error().Err(res.Err()).Msg("Error occured during execution of redis.HGetAll() in metrics.GetMetrics")
				return entity.Metrics{}, errors.InternalServerError("")
			}
			if len(res.Val()) == 0 {
				// expired between SCAN and HGETALL
				continue
			}
			if dberr := res.Scan(&instance); dberr != nil {
				logger.WithCtx(ctx).Warn().Err(dberr).Str("key", key).Msg("Undecodable metrics in metrics.GetMetrics")
				continue
			}
			total.Instances++
			total.ActiveConnections += instance.ActiveConnections
			total.OnlinePrincipals += instance.OnlinePrincipals
			total.Rooms += instance.Rooms
			relayUp = relayUp && instance.RelayConnected
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	total.RelayConnected = total.Instances > 0 && relayUp
	return total, nil
}

func (r repository) SetOrUpdateMetrics(ctx context.Context, logger log.Logger, instanceID string, metrics *entity.Metrics, ttl time.Duration) error {
	key := r.metricsKey(instanceID)
	_, dberr := r.db.Client().TxPipelined(ctx, func(client redis.Pipeliner) error {
		client.HSet(ctx, key,
			"active_connections", metrics.ActiveConnections,
			"online_principals", metrics.OnlinePrincipals,
			"rooms", metrics.Rooms,
			"relay_connected", metrics.RelayConnected,
		)
		client.Expire(ctx, key, ttl)
		return nil
	})
	if dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured in SetOrUpdateMetrics transaction")
		return errors.InternalServerError("")
	}
	return nil
}

func (r repository) DelMetrics(ctx context.Context, logger log.Logger, instanceID string) error {
	if dberr := r.db.Client().Del(ctx, r.metricsKey(instanceID)).Err(); dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.Del() in metrics.DelMetrics")
		return errors.InternalServerError("")
	}
	return nil
}
