package handler

import (
	"github.com/gin-gonic/gin"

	"dorm-track/backend/pkg/response"
)

// mustGetString 从 Gin 上下文中提取 JWT 中间件注入的字符串
// 缺失或为空时写入 401 响应，调用方应在 ok=false 时直接 return
func mustGetString(c *gin.Context, key string) (string, bool) {
	v, exists := c.Get(key)
	if !exists {
		response.Unauthorized(c, "Authentication required")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, "Authentication required")
		return "", false
	}
	return s, true
}

// MustGetUserID 提取当前操作者 user_id
func MustGetUserID(c *gin.Context) (string, bool) {
	return mustGetString(c, "user_id")
}

// MustGetInstitutionID 提取当前租户 institution_id
func MustGetInstitutionID(c *gin.Context) (string, bool) {
	return mustGetString(c, "institution_id")
}
