package authorization

import (
	"net/http"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-gonic/gin"
)

// Guard exposes route protection helpers for sibling modules.
type Guard struct {
	middleware *jwt.GinJWTMiddleware
}

// Guard returns the module's route guard.
func (m *Module) Guard() *Guard {
	if m == nil || m.jwtMiddleware == nil {
		return nil
	}
	return &Guard{middleware: m.jwtMiddleware}
}

// RequireAuthenticated enforces a valid JWT on the route.
func (g *Guard) RequireAuthenticated() gin.HandlerFunc {
	if g == nil || g.middleware == nil {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication is not configured"})
		}
	}
	return g.middleware.MiddlewareFunc()
}

// RequireAnyRole enforces a valid JWT carrying at least one of the
// given roles. Must run after RequireAuthenticated.
func (g *Guard) RequireAnyRole(roles ...string) gin.HandlerFunc {
	required := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		required[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := jwt.ExtractClaims(c)
		for _, role := range extractRoles(claims) {
			if _, ok := required[role]; ok {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	}
}

// RequireRole enforces a single role.
func (g *Guard) RequireRole(role string) gin.HandlerFunc {
	return g.RequireAnyRole(role)
}

// CurrentUserID extracts the authenticated user id from the request
// context. Returns 0 when the request carries no valid identity.
func CurrentUserID(c *gin.Context) uint {
	return extractUserID(jwt.ExtractClaims(c))
}
