package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ContextTraceID = "trace_id"

// TraceMiddleware 为每个请求生成 trace id 并回写响应头。
// 审计记录带同一个 trace id，出问题时可以从响应头直接定位到账本。
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Request-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}
		c.Set(ContextTraceID, traceID)
		c.Header("X-Request-ID", traceID)
		c.Header("X-Trace-ID", traceID)

		c.Next()
	}
}
