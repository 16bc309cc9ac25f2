package service

import (
	"context"
	"fmt"
	"time"

	"github.com/contractguard/contractguard/internal/config"
	"github.com/contractguard/contractguard/internal/model"
	"github.com/contractguard/contractguard/internal/retrieval"
)

// Indexer 向相似度语料写入文档
type Indexer interface {
	Add(ctx context.Context, doc retrieval.Document) error
}

// CorpusIndexer 负责喂语料：条款发布时 embed 条款文本入索引，
// 先例走独立的 ingestion 入口。没有它检索永远搜空语料。
type CorpusIndexer struct {
	embedder Embedder
	index    Indexer
	timeout  time.Duration
	retries  int
}

func NewCorpusIndexer(embedder Embedder, index Indexer, cfg config.RetrievalConfig) *CorpusIndexer {
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &CorpusIndexer{
		embedder: embedder,
		index:    index,
		timeout:  cfg.Timeout(),
		retries:  retries,
	}
}

// Enabled 检索未配置时索引器是 no-op
func (ci *CorpusIndexer) Enabled() bool {
	return ci != nil && ci.embedder != nil && ci.index != nil
}

// IndexClause 把条款文本向量化后写入本合同的条款语料
func (ci *CorpusIndexer) IndexClause(ctx context.Context, clause model.Clause) error {
	if !ci.Enabled() {
		return nil
	}
	vec, err := ci.embed(ctx, clause.Text)
	if err != nil {
		return fmt.Errorf("embed clause %s: %w", clause.ClauseID, err)
	}
	cl := clause
	return ci.index.Add(ctx, retrieval.Document{
		ID:         clause.ContractID + "/" + clause.ClauseID,
		Kind:       retrieval.DocClause,
		ContractID: clause.ContractID,
		Vector:     vec,
		Clause:     &cl,
		Summary:    clause.Text,
	})
}

// IndexPrecedent 把历史判例写入跨合同共享的先例语料。
// contractID 可为空；非空时仅作为来源标注，不影响检索可见性。
func (ci *CorpusIndexer) IndexPrecedent(ctx context.Context, caseID, summary, contractID string) error {
	if !ci.Enabled() {
		return nil
	}
	if summary == "" {
		return fmt.Errorf("precedent %s has no summary to embed", caseID)
	}
	vec, err := ci.embed(ctx, summary)
	if err != nil {
		return fmt.Errorf("embed precedent %s: %w", caseID, err)
	}
	return ci.index.Add(ctx, retrieval.Document{
		ID:         caseID,
		Kind:       retrieval.DocPrecedent,
		ContractID: contractID,
		Vector:     vec,
		Summary:    summary,
	})
}

func (ci *CorpusIndexer) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, ci.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= ci.retries; attempt++ {
		vec, err := ci.embedder.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
