package middleware

import (
	"net/http"

	"github.com/contractguard/contractguard/internal/model"
	"github.com/contractguard/contractguard/internal/service"
	"github.com/gin-gonic/gin"
)

func RateLimitMiddleware(tm *service.TenantManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 必须在 AuthMiddleware 之后使用
		tenantVal, exists := c.Get(ContextTenantKey)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		tenant := tenantVal.(*model.Tenant)

		limiter := tm.GetLimiterForTenant(tenant.ID)
		if limiter == nil {
			// TenantManager 数据不一致时放行，不把限流器缺失升级成拒绝
			c.Next()
			return
		}

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": "1s",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
