package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"portfolio/internal/auth"
	"portfolio/internal/database"
)

// 上下文键。
const (
	ContextUserID             = "userID"
	ContextRole               = "role"
	ContextMustChangePassword = "mustChangePassword"
)

// tokenValidator 校验访问令牌。
type tokenValidator interface {
	ValidateAccessToken(token string) (*auth.TokenClaims, error)
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
}

func bearerToken(c *gin.Context) string {
	parts := strings.Fields(c.GetHeader("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// authenticate 校验令牌并注入身份，失败时已写入 401。不会调用 c.Next。
func authenticate(c *gin.Context, validator tokenValidator) bool {
	rawToken := bearerToken(c)
	if rawToken == "" {
		abortUnauthorized(c)
		return false
	}

	claims, err := validator.ValidateAccessToken(rawToken)
	if err != nil {
		abortUnauthorized(c)
		return false
	}

	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextRole, claims.Role)
	c.Set(ContextMustChangePassword, claims.MustChangePassword)
	return true
}

// AuthMiddleware 校验访问令牌并将用户身份注入上下文，任何角色均可通过。
func AuthMiddleware(validator tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c, validator) {
			return
		}
		c.Next()
	}
}

// RequireAdmin 要求 admin 角色：无令牌 401，非管理员 403。
func RequireAdmin(validator tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c, validator) {
			return
		}
		if c.GetString(ContextRole) != database.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

// UserID 返回 AuthMiddleware 注入的用户 ID。
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextUserID)
	return id, id != ""
}
