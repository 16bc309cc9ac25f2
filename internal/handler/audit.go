package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/contractguard/contractguard/internal/middleware"
	"github.com/contractguard/contractguard/internal/model"
	"github.com/contractguard/contractguard/internal/pkg/apperrors"
	"github.com/contractguard/contractguard/internal/pkg/logger"
	"github.com/contractguard/contractguard/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type AuditHandler struct {
	ledger   *service.AuditLedger
	upgrader websocket.Upgrader
}

func NewAuditHandler(ledger *service.AuditLedger) *AuditHandler {
	return &AuditHandler{
		ledger: ledger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 鉴权走 API key 中间件，跨域交给部署层
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Get GET /v1/audit/records/:id
func (h *AuditHandler) Get(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}
	rec, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrAuditNotFound) {
			c.Error(apperrors.New(apperrors.ErrAuditRecordNotFound, "audit record not found", nil))
			return
		}
		c.Error(apperrors.Wrap(err))
		return
	}
	// 审计记录按租户隔离，跨租户读取按不存在处理
	if rec.TenantID != tenant.ID {
		c.Error(apperrors.New(apperrors.ErrAuditRecordNotFound, "audit record not found", nil))
		return
	}
	c.JSON(http.StatusOK, rec)
}

// List GET /v1/audit/records?limit=50
func (h *AuditHandler) List(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			c.Error(apperrors.NewInvalidRequest("limit must be an integer in [1, 500]"))
			return
		}
		limit = n
	}
	records, err := h.ledger.List(c.Request.Context(), tenant.ID, limit)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	if records == nil {
		records = []*model.AuditRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"tenant_id": tenant.ID,
		"count":     len(records),
		"records":   records,
	})
}

// Verify GET /admin/audit/verify — 重放全链校验哈希。管理端点。
func (h *AuditHandler) Verify(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.Error(apperrors.NewInvalidRequest("tenant_id is required"))
		return
	}
	start := time.Now()
	ok, err := h.ledger.VerifyChain(c.Request.Context(), tenantID)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	resp := gin.H{
		"tenant_id":  tenantID,
		"valid":      ok,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}
	if !ok {
		resp["code"] = string(apperrors.ErrChainCorruption)
	}
	c.JSON(http.StatusOK, resp)
}

// Stream GET /v1/audit/stream — websocket 推送本租户新提交的审计记录
func (h *AuditHandler) Stream(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("audit stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := h.ledger.Subscribe(tenant.ID)
	defer cancel()

	// 读泵只用来发现断连
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func mustTenant(c *gin.Context) *model.Tenant {
	v, exists := c.Get(middleware.ContextTenantKey)
	if !exists {
		c.Error(apperrors.New(apperrors.ErrAuthFailed, "unauthorized: missing tenant context", nil))
		return nil
	}
	return v.(*model.Tenant)
}
