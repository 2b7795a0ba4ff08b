// Events repository encapsulates the data access logic (interactions with the DB) of the stores the
// domain handlers write to: the bounded recent-activity list and the notification read-state.

package events

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/pkg/db"
	"Stockpile/pkg/log"
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
)

type Repository interface {
	// AppendActivity pushes entry on the organization's activity list, keeping only the newest entries.
	AppendActivity(ctx context.Context, logger log.Logger, orgID string, entry entity.ActivityEntry) error
	// RecentActivity returns up to limit entries, newest first.
	RecentActivity(ctx context.Context, logger log.Logger, orgID string, limit int64) ([]entity.ActivityEntry, error)
	// MarkRead records one notification of userID as read.
	MarkRead(ctx context.Context, logger log.Logger, userID, notificationID string) error
	// MarkAllRead records that every notification of userID up to at is read.
	MarkAllRead(ctx context.Context, logger log.Logger, userID string, at time.Time) error
	// IsRead reports whether notificationID, created at createdAt, is read by userID.
	IsRead(ctx context.Context, logger log.Logger, userID, notificationID string, createdAt time.Time) (bool, error)
}

// repository struct of events Repository.
// Object of this will be passed around from main to internal.
// Helps to access the repository layer interface and call methods.
type repository struct {
	db            *db.RedisDB
	activityLimit int64
}

// Returns a new instance of events repository for other packages to access its interface.
func NewRepository(dbwrp *db.RedisDB, activityLimit int64) Repository {
	if activityLimit < 1 {
		activityLimit = 100
	}
	return repository{db: dbwrp, activityLimit: activityLimit}
}

func activityKey(orgID string) string {
	return "activity:" + orgID
}

func readKey(userID string) string {
	return "notifications:" + userID + ":read"
}

func readAllKey(userID string) string {
	return "notifications:" + userID + ":read_all"
}

func (r repository) AppendActivity(ctx context.Context, logger log.Logger, orgID string, entry entity.ActivityEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		logger.WithCtx(ctx).Error().Err(err).Msg("Error occured during marshaling activity in events.AppendActivity")
		return errors.InternalServerError("")
	}
	key := activityKey(orgID)
	_, dberr := r.db.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, raw)
		pipe.LTrim(ctx, key, 0, r.activityLimit-1)
		return nil
	})
	if dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.LPush in events.AppendActivity")
		return errors.InternalServerError("")
	}
	return nil
}

func (r repository) RecentActivity(ctx context.Context, logger log.Logger, orgID string, limit int64) ([]entity.ActivityEntry, error) {
	if limit < 1 || limit > r.activityLimit {
		limit = r.activityLimit
	}
	values, dberr := r.db.Client().LRange(ctx, activityKey(orgID), 0, limit-1).Result()
	if dberr != nil && dberr != redis.Nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.LRange in events.RecentActivity")
		return nil, errors.InternalServerError("")
	}
	entries := make([]entity.ActivityEntry, 0, len(values))
	for _, v := range values {
		var entry entity.ActivityEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			// Skip entries written by an incompatible version
			logger.WithCtx(ctx).Warn().Err(err).Msg("Undecodable activity entry in events.RecentActivity")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r repository) MarkRead(ctx context.Context, logger log.Logger, userID, notificationID string) error {
	if dberr := r.db.Client().SAdd(ctx, readKey(userID), notificationID).Err(); dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.SAdd in events.MarkRead")
		return errors.InternalServerError("")
	}
	return nil
}

func (r repository) MarkAllRead(ctx context.Context, logger log.Logger, userID string, at time.Time) error {
	// Individual marks are covered by the timestamp from now on
	_, dberr := r.db.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, readAllKey(userID), at.Unix(), 0)
		pipe.Del(ctx, readKey(userID))
		return nil
	})
	if dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.Set in events.MarkAllRead")
		return errors.InternalServerError("")
	}
	return nil
}

func (r repository) IsRead(ctx context.Context, logger log.Logger, userID, notificationID string, createdAt time.Time) (bool, error) {
	raw, dberr := r.db.Client().Get(ctx, readAllKey(userID)).Result()
	if dberr != nil && dberr != redis.Nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.Get in events.IsRead")
		return false, errors.InternalServerError("")
	}
	if dberr == nil {
		readAll, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && createdAt.Unix() <= readAll {
			return true, nil
		}
	}
	read, dberr := r.db.Client().SIsMember(ctx, readKey(userID), notificationID).Result()
	if dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.SIsMember in events.IsRead")
		return false, errors.InternalServerError("")
	}
	return read, nil
}
