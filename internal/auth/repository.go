// Auth repository encapsulates the data access logic (interactions with the DB) related to login sessions in Stockpile.

package auth

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
	// GetSession returns the session stored under sessionID.
	GetSession(ctx context.Context, logger log.Logger, sessionID string) (entity.Session, error)
	// SetSession stores a session, expiring it from the DB at session.ExpiresAt.
	// Sessions are written by the external login service; the gateway only reads them.
	SetSession(ctx context.Context, logger log.Logger, session entity.Session) error
	// DelSession removes a session on logout, which revokes live credentials at their next validation.
	DelSession(ctx context.Context, logger log.Logger, sessionID string) error
}

// repository struct of auth Repository.
// Object of this will be passed around from main to internal.
// Helps to access the repository layer interface and call methods.
type repository struct {
	db *db.RedisDB
}

// Returns a new instance of auth repository for other packages to access its interface.
func NewRepository(dbwrp *db.RedisDB) Repository {
	return repository{db: dbwrp}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// Returns errors.NotFound if the session doesn't exist, maybe got expired.
func (r repository) GetSession(ctx context.Context, logger log.Logger, sessionID string) (entity.Session, error) {
	var session entity.Session
	cmd := r.db.Client().HGetAll(ctx, sessionKey(sessionID))
	values, dberr := cmd.Result()
	if dberr != nil && dberr != redis.Nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.HGetAll in auth.GetSession")
		return session, errors.InternalServerError("")
	} else if len(values) == 0 {
		// Key doesn't exist, maybe got expired
		return session, errors.NotFound("Session not available")
	}
	if dberr := cmd.Scan(&session); dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during scanning session in auth.GetSession")
		return session, errors.InternalServerError("")
	}
	return session, nil
}

// Returns nil if the session got successfully added into the DB else error.
func (r repository) SetSession(ctx context.Context, logger log.Logger, session entity.Session) error {
	ttl := time.Until(time.Unix(session.ExpiresAt, 0))
	if ttl <= 0 {
		return errors.BadRequest("Session already expired")
	}
	key := sessionKey(session.ID)
	_, dberr := r.db.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"id":         session.ID,
			"user_id":    session.UserID,
			"token_hash": session.TokenHash,
			"expires_at": session.ExpiresAt,
		})
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.HSet in auth.SetSession")
		return errors.InternalServerError("")
	}
	return nil
}

// Returns nil once the session is gone from the DB.
func (r repository) DelSession(ctx context.Context, logger log.Logger, sessionID string) error {
	if dberr := r.db.Client().Del(ctx, sessionKey(sessionID)).Err(); dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.Del in auth.DelSession")
		return errors.InternalServerError("")
	}
	return nil
}
