// Auth middleware is used to validate the credential sent with a request.
// This verification is needed for endpoints which needs authenticated users.

package auth

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/pkg/log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// This middleware runs the Session Validator on the request credential and stores the Principal in the context.
// Blocks the request to go further into other handlers if the credential is invalid.
func AuthMiddleware(logger log.Logger, validator Validator) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		principal, err := validator.Validate(gctx, CredentialFromRequest(gctx.Request, false))
		if err != nil {
			// Abort the call chain for the request here as the user is unauthenticated
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, errors.Unauthorized(errors.ErrUnauthenticated.Reason()))
			return
		}
		// This pair will be used further down in the handler chain
		gctx.Set("Principal", principal)
		gctx.Next()
	}
}

// RequireRole blocks principals below role. Must run after AuthMiddleware.
func RequireRole(logger log.Logger, role entity.Role) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		principal, ok := gctx.Value("Principal").(entity.Principal)
		if !ok {
			logger.WithCtx(gctx).Error().Msg("Principal missing from context in RequireRole")
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, errors.Unauthorized(errors.ErrUnauthenticated.Reason()))
			return
		}
		if !principal.Role.AtLeast(role) {
			gctx.AbortWithStatusJSON(http.StatusForbidden, errors.Forbidden(errors.ErrForbidden.Reason()))
			return
		}
		gctx.Next()
	}
}

// CredentialFromRequest extracts the bearer credential: Authorization header first, then the access_token cookie.
// Browsers cannot set headers on a websocket handshake, so the gateway also allows a token query parameter.
func CredentialFromRequest(r *http.Request, allowQuery bool) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if scheme, token, found := strings.Cut(header, " "); found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if allowQuery {
		return r.URL.Query().Get("token")
	}
	return ""
}
