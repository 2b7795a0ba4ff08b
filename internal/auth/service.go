// Service layer of the internal package authentication: the Session Validator.

package auth

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/internal/user"
	"Stockpile/pkg/log"
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/blake2b"
)

// Validator turns a bearer credential into the Principal it belongs to.
// It has no side effects and is safe for concurrent use by every connection.
type Validator interface {
	// Validate returns errors.ErrUnauthenticated for any failed check, without saying which one.
	Validate(ctx context.Context, credential string) (entity.Principal, error)
}

// Claims carried by a credential token. ID is the session id, Subject the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// Object of this will be passed around from main to the HTTP layer and the gateway.
type service struct {
	signingKey  []byte
	sessionRepo Repository
	userRepo    user.Repository
	logger      log.Logger
	now         func() time.Time
}

// Helps to access the validator interface. Service object is passed from main.
func NewValidator(signingKey string, sessionRepo Repository, userRepo user.Repository, logger log.Logger) Validator {
	return service{
		signingKey:  []byte(signingKey),
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		logger:      logger,
		now:         time.Now,
	}
}

func (s service) Validate(ctx context.Context, credential string) (entity.Principal, error) {
	principal, reason := s.validate(ctx, credential)
	if reason != "" {
		s.logger.WithCtx(ctx).Debug().Str("reason", reason).Msg("Credential rejected")
		return entity.Principal{}, errors.ErrUnauthenticated
	}
	return principal, nil
}

// validate returns a non-empty reason, kept in the logs only, when any check fails.
func (s service) validate(ctx context.Context, credential string) (entity.Principal, string) {
	if credential == "" {
		return entity.Principal{}, "missing credential"
	}
	claims := &Claims{}
	token, jwterr := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		// Check the signing method
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method found: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if jwterr != nil || !token.Valid {
		return entity.Principal{}, "invalid token"
	}
	if claims.ID == "" || claims.Subject == "" {
		return entity.Principal{}, "token without session or subject"
	}

	session, dberr := s.sessionRepo.GetSession(ctx, s.logger, claims.ID)
	if dberr != nil {
		return entity.Principal{}, "session lookup: " + dberr.Error()
	}
	if session.UserID != claims.Subject {
		return entity.Principal{}, "session belongs to another user"
	}
	if s.now().Unix() >= session.ExpiresAt {
		return entity.Principal{}, "session expired"
	}
	if subtle.ConstantTimeCompare([]byte(HashToken(credential)), []byte(session.TokenHash)) != 1 {
		return entity.Principal{}, "token does not match session"
	}

	u, dberr := s.userRepo.GetUser(ctx, s.logger, claims.Subject)
	if dberr != nil {
		return entity.Principal{}, "user lookup: " + dberr.Error()
	}
	if !u.Active {
		return entity.Principal{}, "user inactive"
	}
	if !u.Role.Valid() || u.OrganizationID == "" {
		return entity.Principal{}, "user without role or organization"
	}
	return u.Principal(), ""
}

// HashToken is the digest stored in a session instead of the token.
func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IssueCredential signs a credential for an existing session, the way the external login service does.
func IssueCredential(signingKey, sessionID, userID string, expiresAt time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
}
