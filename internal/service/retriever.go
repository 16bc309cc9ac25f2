package service

import (
	"context"
	"errors"
	"time"

	"github.com/contractguard/contractguard/internal/config"
	"github.com/contractguard/contractguard/internal/model"
	"github.com/contractguard/contractguard/internal/pkg/logger"
	"github.com/contractguard/contractguard/internal/pkg/metrics"
	"github.com/contractguard/contractguard/internal/retrieval"
)

// Embedder 文本向量化能力
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher 相似度搜索能力，语料范围是合同条款 + 跨合同先例
type Searcher interface {
	Search(ctx context.Context, vec []float32, contractID string, k int) ([]retrieval.Neighbor, error)
}

// SemanticRetriever 语义检索：embedding → top-K 余弦邻居。
// 永远降级不失败：超时或服务不可用时返回空结果并置 degraded 标记，
// 绝不拖垮整个请求。
type SemanticRetriever struct {
	embedder Embedder
	searcher Searcher
	topK     int
	floor    float64
	timeout  time.Duration
	retries  int
}

func NewSemanticRetriever(embedder Embedder, searcher Searcher, cfg config.RetrievalConfig) *SemanticRetriever {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &SemanticRetriever{
		embedder: embedder,
		searcher: searcher,
		topK:     topK,
		floor:    cfg.SimilarityFloor,
		timeout:  cfg.Timeout(),
		retries:  retries,
	}
}

// Retrieve 返回 (语义命中, 先例, degraded)。
// description 为空时是 no-op：不调用 embedding 服务，返回空结果且不算降级。
// 相似度达到 floor 的邻居成为语义命中；所有邻居都进入先例列表。
func (r *SemanticRetriever) Retrieve(ctx context.Context, description, contractID string) ([]model.TriggeredClause, []model.PrecedentCase, bool) {
	hits := make([]model.TriggeredClause, 0)
	cases := make([]model.PrecedentCase, 0)

	if description == "" {
		return hits, cases, false
	}
	if r.embedder == nil || r.searcher == nil {
		metrics.RetrieverDegraded.WithLabelValues("not_configured").Inc()
		return hits, cases, true
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vec, err := r.withRetry(ctx, func(ctx context.Context) ([]float32, error) {
		return r.embedder.Embed(ctx, description)
	})
	if err != nil {
		r.degrade(ctx, err, "embedding")
		return hits, cases, true
	}

	neighbors, err := r.withRetryNeighbors(ctx, func(ctx context.Context) ([]retrieval.Neighbor, error) {
		return r.searcher.Search(ctx, vec, contractID, r.topK)
	})
	if err != nil {
		r.degrade(ctx, err, "similarity")
		return hits, cases, true
	}

	for _, n := range neighbors {
		source := string(n.Kind)
		summary := n.Summary
		if n.Clause != nil && summary == "" {
			summary = n.Clause.Text
		}
		cases = append(cases, model.PrecedentCase{
			CaseID:     n.ID,
			Similarity: n.Similarity,
			Summary:    summary,
			Source:     source,
		})

		if n.Clause == nil || n.Similarity < r.floor {
			continue
		}
		hits = append(hits, model.TriggeredClause{
			ClauseID:      n.Clause.ClauseID,
			ClauseText:    n.Clause.Text,
			ViolationType: n.Clause.ViolationType,
			Severity:      n.Clause.Severity,
			MatchKind:     model.MatchSemantic,
			Confidence:    n.Similarity,
		})
	}
	return hits, cases, false
}

func (r *SemanticRetriever) degrade(ctx context.Context, err error, stage string) {
	reason := stage + "_error"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = stage + "_timeout"
	}
	metrics.RetrieverDegraded.WithLabelValues(reason).Inc()
	logger.Warn("semantic retrieval degraded", "stage", stage, "error", err.Error())
}

// 有界重试：瞬态错误重试几次再降级；context 取消立即放弃
func (r *SemanticRetriever) withRetry(ctx context.Context, fn func(context.Context) ([]float32, error)) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (r *SemanticRetriever) withRetryNeighbors(ctx context.Context, fn func(context.Context) ([]retrieval.Neighbor, error)) ([]retrieval.Neighbor, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
