// Mock methods required in Stockpile tests are all here.

package test

import (
	"Stockpile/internal/entity"
	"Stockpile/pkg/middlewares"
	"net/http"

	"github.com/gin-gonic/gin"
)

// MockRouter returns a fresh gin test server.
func MockRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middlewares.CORSMiddleware("*")) // CORS middleware which allows request from all origin
	return router
}

// Cookie to be used in tests to bypass MockAuthMiddleware
var MockAuthAllowCookie *http.Cookie = &http.Cookie{
	Name:     "mode",
	Value:    "test",
	HttpOnly: true,
}

// MockPrincipalCookies returns the cookies MockAuthMiddleware turns into a Principal.
func MockPrincipalCookies(p entity.Principal) []*http.Cookie {
	return []*http.Cookie{
		MockAuthAllowCookie,
		{Name: "user", Value: p.UserID},
		{Name: "org", Value: p.OrganizationID},
		{Name: "role", Value: string(p.Role)},
	}
}

// MockAuthMiddleware stands in for auth.AuthMiddleware, reading the principal from cookies.
func MockAuthMiddleware() gin.HandlerFunc {
	return func(gctx *gin.Context) {
		token, err := gctx.Request.Cookie("mode")
		if err != nil || token.Value != "test" {
			gctx.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		user, err := gctx.Request.Cookie("user")
		if err != nil {
			gctx.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		principal := entity.Principal{UserID: user.Value, Role: entity.RoleUser}
		if org, err := gctx.Request.Cookie("org"); err == nil {
			principal.OrganizationID = org.Value
		}
		if role, err := gctx.Request.Cookie("role"); err == nil {
			principal.Role = entity.Role(role.Value)
		}
		// This pair will be used further down in the handler chain
		gctx.Set("Principal", principal)
		gctx.Next()
	}
}
