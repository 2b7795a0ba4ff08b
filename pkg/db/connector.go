// Initialization of Redis client to be used internally in Stockpile.

package db

import (
	"Stockpile/pkg/log"
	"context"
	"net"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RedisDB represents a redis client connection to be used internally in Stockpile.
// The same client backs the session store, the relay bus and the realtime side stores.
type RedisDB struct {
	client *redis.Client
}

// Options needed to reach the redis-server.
type Options struct {
	Addr     string
	Port     string
	Password string
	DB       int
}

// Client returns the redis client wrapped by RedisDB.
func (db *RedisDB) Client() *redis.Client {
	return db.client
}

// Returns a new Redis DB connection wrapped up by RedisDB struct.
func NewDbConnection(ctx context.Context, logger log.Logger, opts Options) (*RedisDB, error) {
	if opts.Addr == "" || opts.Port == "" {
		return nil, errors.New("improper redis address configuration")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(opts.Addr, opts.Port),
		Password: opts.Password,
		DB:       opts.DB,
	})
	logger.WithCtx(ctx).Info().Str("addr", client.Options().Addr).Int("db", opts.DB).Msg("Initialized redis client")
	return &RedisDB{client: client}, nil
}

// Wrap returns a RedisDB around an already configured client.
func Wrap(client *redis.Client) *RedisDB {
	return &RedisDB{client: client}
}

// Helper to check connection status of redis client to redis-server.
// Equivalent to a PING request on redis-server, returns PONG on success.
func (db *RedisDB) CheckDbConnection(ctx context.Context, logger log.Logger) error {
	logger.WithCtx(ctx).Info().Msg("Checking DB Connection . . .")
	if cnterr := db.Client().Ping(ctx).Err(); cnterr != nil {
		// Most likely, DB connection failure
		logger.WithCtx(ctx).Error().Err(cnterr).Msg("Redis client couldn't PING the redis-server.")
		return errors.Wrap(cnterr, "redis ping")
	}
	logger.WithCtx(ctx).Info().Msg("Connection to DB Successful")
	return nil
}

// Helper to close the RedisDB client, should be called before closing the server.
func (db *RedisDB) CloseDbConnection(ctx context.Context) error {
	return db.Client().Close()
}
