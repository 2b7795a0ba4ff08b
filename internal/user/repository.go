// User repository encapsulates the data access logic (interactions with the DB) related to Users in Stockpile.
// Users are written by the CRUD layer; the realtime core only reads them.

package user

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/pkg/db"
	"Stockpile/pkg/log"
	"context"

	"github.com/go-redis/redis/v8"
)

type Repository interface {
	// GetUser returns the user with userID if exists.
	GetUser(ctx context.Context, logger log.Logger, userID string) (entity.User, error)
	// SetUser adds or replaces the user record.
	SetUser(ctx context.Context, logger log.Logger, user entity.User) error
}

// repository struct of user Repository.
// Object of this will be passed around from main to internal.
// Helps to access the repository layer interface and call methods.
type repository struct {
	db *db.RedisDB
}

// Returns a new instance of repository for other packages to access its interface.
func NewRepository(dbwrp *db.RedisDB) Repository {
	return repository{db: dbwrp}
}

func userKey(userID string) string {
	return "user:" + userID
}

// Returns the user data object if user with the given userID is found in the DB.
func (r repository) GetUser(ctx context.Context, logger log.Logger, userID string) (entity.User, error) {
	user := entity.User{}
	available, dberr := r.db.Client().Exists(ctx, userKey(userID)).Result()
	if dberr != nil && dberr != redis.Nil {
		// Error during interacting with DB
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.Exists() in user.GetUser")
		return user, errors.InternalServerError("")
	} else if available == 0 {
		// User not available
		return user, errors.NotFound("User not available")
	}
	if dberr := r.db.Client().HGetAll(ctx, userKey(userID)).Scan(&user); dberr != nil {
		// Error during interacting with DB
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.HGetAll() in user.GetUser")
		return user, errors.InternalServerError("")
	}
	return user, nil
}

// Returns nil if user got successfully added or updated into the DB.
func (r repository) SetUser(ctx context.Context, logger log.Logger, ue entity.User) error {
	dberr := r.db.Client().HSet(ctx, userKey(ue.ID), map[string]interface{}{
		"id":              ue.ID,
		"organization_id": ue.OrganizationID,
		"role":            string(ue.Role),
		"active":          ue.Active,
		"name":            ue.Name,
		"email":           ue.Email,
	}).Err()
	if dberr != nil {
		logger.WithCtx(ctx).Error().Err(dberr).Msg("Error occured during execution of redis.HSet() in user.SetUser")
		return errors.InternalServerError("")
	}
	return nil
}
