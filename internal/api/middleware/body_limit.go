package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dorm-track/backend/pkg/response"
)

// BodyLimit 全局请求体大小限制中间件
// maxBytes: 允许的最大请求体字节数（如 1<<20 = 1MB）
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 声明了长度的请求直接拒绝，无需读取
		if c.Request.ContentLength > maxBytes {
			response.AbortError(c, http.StatusRequestEntityTooLarge, response.CodeBodyTooLarge, "Request body too large")
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		c.Next()

		if c.IsAborted() || c.Writer.Written() {
			return
		}
		var maxErr *http.MaxBytesError
		for _, err := range c.Errors {
			if errors.As(err.Err, &maxErr) {
				response.Error(c, http.StatusRequestEntityTooLarge, response.CodeBodyTooLarge, "Request body too large")
				return
			}
		}
	}
}
