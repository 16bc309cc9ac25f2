// Package retrieval 提供语义检索的两个外部能力：文本 embedding 与
// 向量相似度搜索。检索语料分两类：合同自己的条款语料（按 contract_id
// 限定）和跨合同共享的先例语料。
package retrieval

import "github.com/contractguard/contractguard/internal/model"

type DocKind string

const (
	DocClause    DocKind = "clause"
	DocPrecedent DocKind = "precedent"
)

// Document 是写入相似度索引的一条语料
type Document struct {
	ID         string
	Kind       DocKind
	ContractID string // precedent 文档可为空，表示跨合同共享
	Vector     []float32
	Clause     *model.Clause // Kind == DocClause 时携带
	Summary    string
}

// Neighbor 相似度搜索返回的邻居
type Neighbor struct {
	ID         string
	Kind       DocKind
	Similarity float64
	Clause     *model.Clause
	Summary    string
}
