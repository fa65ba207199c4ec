package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/tourdesk/excursion-backend/pkg/jwt"
)

// UserContextKey is the gin context key holding the caller's UserContext
const UserContextKey = "user_context"

// UserContext is the authenticated caller
type UserContext struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// HasRole reports whether the caller holds any of roles
func (u UserContext) HasRole(roles ...string) bool {
	for _, have := range u.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// AuthMiddleware requires a valid bearer access token
func AuthMiddleware(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "MISSING_AUTH_HEADER", "Authorization header is required")
			return
		}

		authenticate(c, jwtService, authHeader)
	}
}

func authenticate(c *gin.Context, jwtService *jwt.Service, authHeader string) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		abortUnauthorized(c, "INVALID_AUTH_FORMAT", "Authorization header must be 'Bearer <token>'")
		return
	}

	claims, err := jwtService.ValidateAccessToken(strings.TrimSpace(parts[1]))
	if err != nil {
		if errors.Is(err, gojwt.ErrTokenExpired) {
			abortUnauthorized(c, "TOKEN_EXPIRED", "Access token has expired")
			return
		}
		abortUnauthorized(c, "INVALID_TOKEN", "Invalid access token")
		return
	}

	userCtx := UserContext{
		UserID: claims.Subject,
		Roles:  claims.Roles,
	}
	c.Set(UserContextKey, userCtx)
	c.Set("user_id", userCtx.UserID)
	c.Set("roles", userCtx.Roles)

	c.Next()
}

// RequireRole allows the request when the caller holds any of roles.
// Must be used after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			abortUnauthorized(c, "MISSING_USER_CONTEXT", "User context not found")
			return
		}

		if !userCtx.HasRole(roles...) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Insufficient permissions",
				"code":    "INSUFFICIENT_PERMISSIONS",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetUserContext returns the authenticated caller, if any
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}

	userCtx, ok := value.(UserContext)
	if !ok {
		return UserContext{}, false
	}

	return userCtx, true
}

// MustGetUserContext returns the caller and panics when the route is not
// behind AuthMiddleware
func MustGetUserContext(c *gin.Context) UserContext {
	userCtx, exists := GetUserContext(c)
	if !exists {
		panic("user context not found; is AuthMiddleware installed?")
	}
	return userCtx
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error":   "unauthorized",
		"message": message,
		"code":    code,
	})
	c.Abort()
}
