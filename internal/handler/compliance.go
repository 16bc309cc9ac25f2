package handler

import (
	"encoding/json"
	"net/http"

	"github.com/contractguard/contractguard/internal/middleware"
	"github.com/contractguard/contractguard/internal/model"
	"github.com/contractguard/contractguard/internal/pkg/apperrors"
	"github.com/contractguard/contractguard/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderActorID        = "X-Actor-ID"
	HeaderReplay         = "X-Idempotency-Replay"
)

type ComplianceHandler struct {
	analyzer *service.Analyzer
}

func NewComplianceHandler(analyzer *service.Analyzer) *ComplianceHandler {
	return &ComplianceHandler{analyzer: analyzer}
}

// Check POST /v1/compliance/check
// 请求体原文同时用于幂等指纹和审计留痕，所以先整体读出再反序列化。
func (h *ComplianceHandler) Check(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		c.Error(apperrors.NewInvalidRequest("failed to read request body"))
		return
	}
	var req model.CheckRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	if req.ContractID == "" {
		c.Error(apperrors.NewInvalidRequest("contract_id is required"))
		return
	}
	if req.ProposedActivity.Type == "" {
		c.Error(apperrors.NewInvalidRequest("proposed_activity.type is required"))
		return
	}

	actorID := c.GetHeader(HeaderActorID)
	if actorID == "" {
		actorID = "api-key:" + tenant.ID
	}

	result, err := h.analyzer.Analyze(c.Request.Context(), service.AnalyzeInput{
		TenantID:       tenant.ID,
		ActorID:        actorID,
		ContractID:     req.ContractID,
		TraceID:        c.GetString(middleware.ContextTraceID),
		SourceIP:       c.ClientIP(),
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
		Activity:       req.ProposedActivity,
		RawRequest:     raw,
	})
	if err != nil {
		c.Error(err)
		return
	}

	if result.Replay {
		c.Header(HeaderReplay, "true")
	}
	c.JSON(http.StatusOK, result.Response)
}
