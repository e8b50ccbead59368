package app

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxRole   = "staff_role"
	ctxUserID = "staff_id"

	// staticRole is granted to holders of a static token.
	staticRole = "admin"
)

type AuthConfig struct {
	JWTSecret    string
	StaticTokens []string
	// Roles allowed through; everything else, customers included, gets 403.
	Roles []string
}

type staffClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware accepts an HMAC-signed JWT carrying a role claim, or one of
// the static tokens, and rejects roles not allowed to use the console.
func AuthMiddleware(cfg AuthConfig) gin.HandlerFunc {
	secret := []byte(strings.TrimSpace(cfg.JWTSecret))
	static := make([]string, 0, len(cfg.StaticTokens))
	for _, t := range cfg.StaticTokens {
		if t = strings.TrimSpace(t); t != "" {
			static = append(static, t)
		}
	}

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		tokenStr := parts[1]

		role, subject, ok := "", "", false
		if len(secret) > 0 {
			var claims staffClaims
			_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenMalformed
				}
				return secret, nil
			}, jwt.WithLeeway(5*time.Second))
			if err == nil {
				role, subject, ok = claims.Role, claims.Subject, true
			}
		}
		if !ok && slices.Contains(static, tokenStr) {
			role, ok = staticRole, true
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if !slices.Contains(cfg.Roles, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "staff access required"})
			return
		}

		c.Set(ctxRole, role)
		c.Set(ctxUserID, subject)
		c.Next()
	}
}
