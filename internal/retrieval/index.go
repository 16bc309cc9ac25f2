package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryIndex 进程内余弦相似度索引。小语料下够用，生产环境用 pgvector。
type MemoryIndex struct {
	mu   sync.RWMutex
	docs []Document
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (ix *MemoryIndex) Add(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.docs = append(ix.docs, doc)
	return nil
}

// Search 返回 top-k 邻居。条款语料限定在 contractID 内，先例语料跨合同共享。
func (ix *MemoryIndex) Search(ctx context.Context, vec []float32, contractID string, k int) ([]Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	neighbors := make([]Neighbor, 0, len(ix.docs))
	for i := range ix.docs {
		doc := &ix.docs[i]
		if doc.Kind == DocClause && doc.ContractID != contractID {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			ID:         doc.ID,
			Kind:       doc.Kind,
			Similarity: cosine(vec, doc.Vector),
			Clause:     doc.Clause,
			Summary:    doc.Summary,
		})
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Similarity > neighbors[j].Similarity
	})
	if k > 0 && len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
