package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chain-bridge.backend/pkg/crypto"
	"chain-bridge.backend/pkg/jwt"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// APIKeyHeader is the header key for service API keys
	APIKeyHeader = "X-API-Key"
	// BearerPrefix is the prefix for bearer tokens
	BearerPrefix = "Bearer "
	// OperatorKey is the context key for the operator identity
	OperatorKey = "operator"
	// OperatorRoleKey is the context key for the operator role
	OperatorRoleKey = "operatorRole"

	// RoleAdmin is required for the admin surface
	RoleAdmin = "admin"
)

// AuthMiddleware validates operator bearer tokens
func AuthMiddleware(jwtService *jwt.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			log.Printf("[AuthMiddleware] Request to %s failed: Authorization header is missing", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header is required",
			})
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			log.Printf("[AuthMiddleware] Request to %s failed: Invalid authorization format", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization format. Use: Bearer <token>",
			})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)
		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			log.Printf("[AuthMiddleware] Request to %s failed: %v", c.Request.URL.Path, err)
			if err == jwt.ErrExpiredToken {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Token has expired",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
			})
			return
		}

		c.Set(OperatorKey, claims.Subject)
		c.Set(OperatorRoleKey, claims.Role)

		c.Next()
	}
}

// DualAuthMiddleware accepts either an operator bearer token or a service
// API key. API-key callers act as the service operator with admin role.
func DualAuthMiddleware(jwtService *jwt.JWTService, apiKeyHash string) gin.HandlerFunc {
	bearerAuth := AuthMiddleware(jwtService)
	return func(c *gin.Context) {
		apiKey := c.GetHeader(APIKeyHeader)
		if apiKey == "" {
			bearerAuth(c)
			return
		}

		if apiKeyHash == "" || !crypto.CheckAPIKey(apiKey, apiKeyHash) {
			log.Printf("[DualAuthMiddleware] Request to %s failed: Invalid API key", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			return
		}

		c.Set(OperatorKey, "service-api-key")
		c.Set(OperatorRoleKey, RoleAdmin)
		c.Next()
	}
}

// RequireRole aborts unless the authenticated operator carries the role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, exists := c.Get(OperatorRoleKey)
		if !exists || got != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}
		c.Next()
	}
}

// GetOperator gets the operator identity from context
func GetOperator(c *gin.Context) (string, bool) {
	operator, exists := c.Get(OperatorKey)
	if !exists {
		return "", false
	}
	return operator.(string), true
}
