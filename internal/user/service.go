// Service layer of the internal package user.

package user

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/pkg/log"
	"context"
)

// Service layer of internal package user which encapsulates UserModel logic of Stockpile.
type Service interface {
	// Fetches the user record of the authenticated principal
	getuser(ctx context.Context, principal entity.Principal) (entity.User, error)
}

// Object of this will be passed around from main to routers to API.
// Helps to access the service layer interface and call methods.
type service struct {
	userRepo Repository
	logger   log.Logger
}

func NewService(userRepo Repository, logger log.Logger) Service {
	return service{userRepo, logger}
}

func (s service) getuser(ctx context.Context, principal entity.Principal) (entity.User, error) {
	if principal.UserID == "" {
		// principal missing from context
		return entity.User{}, errors.InternalServerError("")
	}
	return s.userRepo.GetUser(ctx, s.logger, principal.UserID)
}
