package middleware

import (
	"examhub_backend/internal/model"
	"examhub_backend/internal/service"
	"examhub_backend/internal/util"
	"strings"

	"github.com/gin-gonic/gin"
)

// CurrentUserKey 上下文中保存重新加载后的用户
const CurrentUserKey = "currentUser"

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, claims, err := authService.Verify(c.Request.Context(), bearerToken(c))
		if err != nil {
			util.RespondError(c, err)
			return
		}

		c.Set(util.ContextUserKey, claims)
		c.Set(CurrentUserKey, user)
		c.Next()
	}
}

// AdminMiddleware 以数据库中的角色为准，必须在 AuthMiddleware 之后
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			util.RespondError(c, util.ErrTokenMissing)
			return
		}
		if !user.IsAdmin() {
			util.RespondError(c, util.ErrForbidden)
			return
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(CurrentUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}
