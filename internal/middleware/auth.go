package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/jaemin-s/eventsync/internal/auth"
	"github.com/jaemin-s/eventsync/pkg/errors"
	"github.com/jaemin-s/eventsync/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
)

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, errors.ErrUnauthorized)
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// every validation failure is a 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, errors.ErrUnauthorized)
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Next()
	}
}

// OptionalAuth records the caller's claims when a valid bearer token is present and lets
// anonymous requests through. An invalid token is still rejected.
func OptionalAuth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwt == nil {
			c.Next()
			return
		}
		if _, ok := bearerToken(c); !ok {
			c.Next()
			return
		}
		Auth(jwt)(c)
	}
}

// RequireScope rejects callers whose token lacks scope. It must run after Auth.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Abort(c, errors.ErrUnauthorized)
			return
		}
		if !claims.HasScope(scope) {
			response.Abort(c, errors.ErrForbidden)
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by Auth, if any.
func ClaimsFrom(c *gin.Context) (*iauth.Claims, bool) {
	value, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*iauth.Claims)
	return claims, ok && claims != nil
}

func bearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authz[7:])
	return token, token != ""
}
