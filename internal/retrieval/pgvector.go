package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/contractguard/contractguard/internal/model"
	"github.com/jmoiron/sqlx"
)

// PGVectorIndex 基于 pgvector 扩展的相似度索引。
// 余弦距离算子 <=>，相似度 = 1 - 距离。
type PGVectorIndex struct {
	db   *sqlx.DB
	dims int
}

func NewPGVectorIndex(db *sqlx.DB, dims int) *PGVectorIndex {
	if dims <= 0 {
		dims = 1536
	}
	ix := &PGVectorIndex{db: db, dims: dims}
	_ = ix.ensureSchema(context.Background())
	return ix
}

func (ix *PGVectorIndex) Add(ctx context.Context, doc Document) error {
	var clauseJSON []byte
	if doc.Clause != nil {
		clauseJSON, _ = json.Marshal(doc.Clause)
	}
	_, err := ix.db.ExecContext(ctx, `
		INSERT INTO corpus_embeddings (id, kind, contract_id, summary, clause, embedding)
		VALUES ($1, $2, $3, $4, $5, $6::vector)
		ON CONFLICT (id) DO NOTHING
	`, doc.ID, string(doc.Kind), doc.ContractID, doc.Summary, clauseJSON, vectorLiteral(doc.Vector))
	return err
}

func (ix *PGVectorIndex) Search(ctx context.Context, vec []float32, contractID string, k int) ([]Neighbor, error) {
	if k <= 0 {
		k = 5
	}
	rows, err := ix.db.QueryxContext(ctx, `
		SELECT id, kind, summary, clause, 1 - (embedding <=> $1::vector) AS similarity
		FROM corpus_embeddings
		WHERE kind = 'precedent' OR contract_id = $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`, vectorLiteral(vec), contractID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	neighbors := make([]Neighbor, 0, k)
	for rows.Next() {
		var (
			n          Neighbor
			kind       string
			summary    sql.NullString
			clauseJSON []byte
		)
		if err := rows.Scan(&n.ID, &kind, &summary, &clauseJSON, &n.Similarity); err != nil {
			return nil, err
		}
		n.Kind = DocKind(kind)
		n.Summary = summary.String
		if len(clauseJSON) > 0 {
			var clause model.Clause
			if err := json.Unmarshal(clauseJSON, &clause); err == nil {
				n.Clause = &clause
			}
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, rows.Err()
}

func (ix *PGVectorIndex) ensureSchema(ctx context.Context) error {
	if _, err := ix.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return err
	}
	_, err := ix.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS corpus_embeddings (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			contract_id TEXT,
			summary TEXT,
			clause JSONB,
			embedding vector(%d)
		)
	`, ix.dims))
	return err
}

// vectorLiteral 生成 pgvector 的输入字面量 "[0.1,0.2,...]"
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
