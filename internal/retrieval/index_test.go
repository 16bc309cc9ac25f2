package retrieval

import (
	"context"
	"testing"

	"github.com/contractguard/contractguard/internal/model"
)

func TestMemoryIndexOrdersBySimilarity(t *testing.T) {
	ix := NewMemoryIndex()
	ix.Add(context.Background(), Document{ID: "far", Kind: DocPrecedent, Vector: []float32{0, 1}})
	ix.Add(context.Background(), Document{ID: "near", Kind: DocPrecedent, Vector: []float32{1, 0.1}})
	ix.Add(context.Background(), Document{ID: "exact", Kind: DocPrecedent, Vector: []float32{1, 0}})

	out, err := ix.Search(context.Background(), []float32{1, 0}, "c-1", 3)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 neighbors, got %d", len(out))
	}
	if out[0].ID != "exact" || out[1].ID != "near" || out[2].ID != "far" {
		t.Fatalf("ordering broken: %s %s %s", out[0].ID, out[1].ID, out[2].ID)
	}
	if out[0].Similarity < 0.999 {
		t.Fatalf("identical vector similarity should be ~1, got %f", out[0].Similarity)
	}
}

func TestMemoryIndexTopK(t *testing.T) {
	ix := NewMemoryIndex()
	for i := 0; i < 10; i++ {
		ix.Add(context.Background(), Document{ID: string(rune('a' + i)), Kind: DocPrecedent, Vector: []float32{1, float32(i)}})
	}
	out, err := ix.Search(context.Background(), []float32{1, 0}, "c-1", 3)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("top-k not honored: %d", len(out))
	}
}

func TestMemoryIndexContractScoping(t *testing.T) {
	ix := NewMemoryIndex()
	ix.Add(context.Background(), Document{ID: "mine", Kind: DocClause, ContractID: "c-1", Vector: []float32{1, 0},
		Clause: &model.Clause{ClauseID: "mine"}})
	ix.Add(context.Background(), Document{ID: "other", Kind: DocClause, ContractID: "c-2", Vector: []float32{1, 0},
		Clause: &model.Clause{ClauseID: "other"}})
	ix.Add(context.Background(), Document{ID: "shared", Kind: DocPrecedent, Vector: []float32{1, 0}})

	out, err := ix.Search(context.Background(), []float32{1, 0}, "c-1", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	// 条款限定本合同，先例跨合同共享
	ids := map[string]bool{}
	for _, n := range out {
		ids[n.ID] = true
	}
	if !ids["mine"] || !ids["shared"] || ids["other"] {
		t.Fatalf("contract scoping broken: %v", ids)
	}
}

func TestCosineDegenerateInputs(t *testing.T) {
	if c := cosine(nil, nil); c != 0 {
		t.Fatalf("empty vectors should score 0, got %f", c)
	}
	if c := cosine([]float32{1, 0}, []float32{1}); c != 0 {
		t.Fatalf("mismatched lengths should score 0, got %f", c)
	}
	if c := cosine([]float32{0, 0}, []float32{1, 0}); c != 0 {
		t.Fatalf("zero vector should score 0, got %f", c)
	}
}
