package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"uptask/internal/model"
	"uptask/internal/pkg/credential"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "userID"
	ctxUser   = "user"
)

// UserFinder 按 ID 查询用户。
type UserFinder interface {
	FindUserByID(ctx context.Context, id string) (*model.User, error)
}

// AuthMiddleware 校验 Bearer JWT，加载用户并写入上下文。
func AuthMiddleware(issuer *credential.Issuer, users UserFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		userID, err := issuer.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, credential.ErrExpired) {
				msg = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		user, err := users.FindUserByID(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxUserID, user.ID)
		c.Set(ctxUser, user)
		c.Next()
	}
}

// UserID 返回当前请求的用户 ID，未认证时为空。
func UserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// CurrentUser 返回当前请求的用户，未认证时为 nil。
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ctxUser)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}
