// loads up the .env files and environment variables used internally by Stockpile.

package config

import (
	"Stockpile/pkg/db"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/xid"
)

// Config holds every setting of a Stockpile instance.
type Config struct {
	Env        string
	Version    string
	SrvAddr    string
	SrvPort    string
	CORSOrigin string

	Redis db.Options

	// HMAC key of credential tokens.
	AccessSecret string

	// Relay origin id of this process, unique per instance.
	InstanceID     string
	RelayPrefix    string
	RelayQueueSize int
	RelayBackoff   time.Duration

	PingInterval   time.Duration
	MaxMissedPings int
	SendBuffer     int
	MaxMessageSize int64

	ActivityLimit   int64
	MetricsInterval time.Duration
}

// uses go package: godotenv to load up development enviroment variables
func LoadDevConfig(path string) error {
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "loading %s", path)
	}
	return nil
}

// Load reads the configuration from the environment, applying defaults for unset values.
func Load() (Config, error) {
	cfg := Config{
		Env:        envOr("ENV", "DEV"),
		Version:    envOr("VERSION", "1.0.0"),
		SrvAddr:    os.Getenv("SRV_ADDR"),
		SrvPort:    envOr("SRV_PORT", "8080"),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
		Redis: db.Options{
			Addr:     envOr("REDIS_ADDR", "127.0.0.1"),
			Port:     envOr("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		AccessSecret: os.Getenv("ACCESS_SECRET"),
		InstanceID:   envOr("INSTANCE_ID", xid.New().String()),
		RelayPrefix:  envOr("RELAY_PREFIX", "stockpile"),
	}
	if cfg.AccessSecret == "" {
		return cfg, errors.New("ACCESS_SECRET must be set")
	}

	var err error
	if cfg.Redis.DB, err = intOr("REDIS_DB_NUMBER", 0); err != nil {
		return cfg, err
	}
	if cfg.RelayQueueSize, err = intOr("RELAY_QUEUE_SIZE", 1024); err != nil {
		return cfg, err
	}
	if cfg.RelayBackoff, err = durationOr("RELAY_BACKOFF_MAX", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.PingInterval, err = durationOr("WS_PING_INTERVAL", 25*time.Second); err != nil {
		return cfg, err
	}
	if cfg.MaxMissedPings, err = intOr("WS_MAX_MISSED_PINGS", 2); err != nil {
		return cfg, err
	}
	if cfg.SendBuffer, err = intOr("WS_SEND_BUFFER", 256); err != nil {
		return cfg, err
	}
	maxMessage, err := intOr("WS_MAX_MESSAGE_SIZE", 64*1024)
	if err != nil {
		return cfg, err
	}
	cfg.MaxMessageSize = int64(maxMessage)
	activity, err := intOr("ACTIVITY_LIMIT", 100)
	if err != nil {
		return cfg, err
	}
	cfg.ActivityLimit = int64(activity)
	if cfg.MetricsInterval, err = durationOr("METRICS_INTERVAL", 15*time.Second); err != nil {
		return cfg, err
	}

	if cfg.MaxMissedPings < 1 {
		cfg.MaxMissedPings = 1
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "Couldn't parse ENV: %s", key)
	}
	return v, nil
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "Couldn't parse ENV: %s", key)
	}
	return v, nil
}
