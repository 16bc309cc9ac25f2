package handler

import (
	"errors"
	"net/http"

	"github.com/contractguard/contractguard/internal/model"
	"github.com/contractguard/contractguard/internal/pkg/apperrors"
	"github.com/contractguard/contractguard/internal/pkg/logger"
	"github.com/contractguard/contractguard/internal/service"
	"github.com/gin-gonic/gin"
)

// ContractHandler 管理端条款发布/查询与先例录入。走 admin key，不走租户鉴权。
type ContractHandler struct {
	clauses service.ClauseStore
	indexer *service.CorpusIndexer
}

func NewContractHandler(clauses service.ClauseStore, indexer *service.CorpusIndexer) *ContractHandler {
	return &ContractHandler{clauses: clauses, indexer: indexer}
}

// PublishClause POST /admin/contracts/:id/clauses
// 发布即入语料：条款文本同步 embed 进相似度索引，让语义检索搜得到它。
// 索引失败不回滚发布——结构化评估照常工作，语义侧按降级语义处理。
func (h *ContractHandler) PublishClause(c *gin.Context) {
	contractID := c.Param("id")
	var req model.PublishClauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	clause := model.Clause{
		ClauseID:      req.ClauseID,
		ContractID:    contractID,
		Text:          req.Text,
		Severity:      req.Severity,
		ViolationType: req.ViolationType,
		Trigger:       req.Trigger,
	}
	if err := h.clauses.Publish(c.Request.Context(), clause); err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}

	indexed := false
	if h.indexer.Enabled() {
		if err := h.indexer.IndexClause(c.Request.Context(), clause); err != nil {
			logger.Warn("clause published but not indexed",
				"contract_id", contractID, "clause_id", req.ClauseID, "error", err.Error())
		} else {
			indexed = true
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"contract_id": contractID,
		"clause_id":   req.ClauseID,
		"indexed":     indexed,
	})
}

// ListClauses GET /admin/contracts/:id/clauses
func (h *ContractHandler) ListClauses(c *gin.Context) {
	contractID := c.Param("id")
	clauses, err := h.clauses.GetClauses(c.Request.Context(), contractID)
	if err != nil {
		if errors.Is(err, service.ErrContractNotFound) {
			c.Error(apperrors.New(apperrors.ErrContractNotFound, "contract not found: "+contractID, nil))
			return
		}
		c.Error(apperrors.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"contract_id": contractID,
		"count":       len(clauses),
		"clauses":     clauses,
	})
}

// PublishPrecedent POST /admin/precedents — 先例只活在语料里，
// 所以检索未配置时直接拒绝，而不是静默吞掉。
func (h *ContractHandler) PublishPrecedent(c *gin.Context) {
	var req model.PublishPrecedentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	if !h.indexer.Enabled() {
		c.Error(apperrors.New(apperrors.ErrEmbeddingUnavailable,
			"semantic retrieval is not configured, precedent corpus unavailable", nil))
		return
	}
	if err := h.indexer.IndexPrecedent(c.Request.Context(), req.CaseID, req.Summary, req.ContractID); err != nil {
		c.Error(apperrors.New(apperrors.ErrEmbeddingUnavailable, "failed to index precedent", err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"case_id": req.CaseID})
}
