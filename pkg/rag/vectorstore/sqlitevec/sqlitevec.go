// Package sqlitevec implements vectorstore.Store as a brute-force cosine
// search over modernc.org/sqlite storage. Grounded on
// pkg/rag/database/database.go's CosineSimilarity/SortByScore helpers,
// generalized to project-scoped batch upsert.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/agentplane/ragcore/pkg/rag/vectorstore"
	"github.com/agentplane/ragcore/pkg/sqliteutil"
)

// Store is a sqlitevec-backed vectorstore.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) a dedicated sqlitevec database at path.
// Kept separate from pkg/store's database so the vector backend can be
// swapped for qdrant without touching relational persistence.
func Open(path string) (*Store, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS vector_points (
		chunk_id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		file_path TEXT,
		language TEXT,
		embedding TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_vector_points_project ON vector_points(project_id)`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_vector_points_document ON vector_points(document_id)`)
	return err
}

// InsertEmbeddings upserts points in batches of at most vectorstore.BatchSize
// per transaction, rolling back the whole batch on partial failure.
func (s *Store) InsertEmbeddings(ctx context.Context, points []vectorstore.Point) error {
	for _, batch := range vectorstore.Batches(points) {
		if err := s.insertBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertBatch(ctx context.Context, batch []vectorstore.Point) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range batch {
		embeddingJSON, err := json.Marshal(p.Embedding)
		if err != nil {
			return fmt.Errorf("marshaling embedding for chunk %s: %w", p.ChunkID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO vector_points (chunk_id, document_id, project_id, file_path, language, embedding)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(chunk_id) DO UPDATE SET
			   document_id=excluded.document_id, project_id=excluded.project_id,
			   file_path=excluded.file_path, language=excluded.language, embedding=excluded.embedding`,
			p.ChunkID, p.DocumentID, p.ProjectID, p.FilePath, p.Language, string(embeddingJSON))
		if err != nil {
			return fmt.Errorf("upserting point %s: %w", p.ChunkID, err)
		}
	}
	return tx.Commit()
}

// Search performs a brute-force cosine-similarity scan. Adequate for the
// dataset sizes this module targets; a production deployment swaps in
// qdrant for true ANN search without changing callers.
func (s *Store) Search(ctx context.Context, queryEmbedding []float64, limit int, projectIDs []string, scoreThreshold float64) ([]vectorstore.Match, error) {
	query := `SELECT chunk_id, document_id, project_id, embedding FROM vector_points`
	var args []any
	if len(projectIDs) > 0 {
		placeholders := ""
		for i, id := range projectIDs {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, id)
		}
		query += " WHERE project_id IN (" + placeholders + ")"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []vectorstore.Match
	for rows.Next() {
		var chunkID, documentID, projectID, embeddingJSON string
		if err := rows.Scan(&chunkID, &documentID, &projectID, &embeddingJSON); err != nil {
			return nil, err
		}
		var embedding []float64
		if err := json.Unmarshal([]byte(embeddingJSON), &embedding); err != nil {
			return nil, fmt.Errorf("unmarshaling embedding for chunk %s: %w", chunkID, err)
		}
		score := cosineSimilarity(queryEmbedding, embedding)
		if score < scoreThreshold {
			continue
		}
		matches = append(matches, vectorstore.Match{ChunkID: chunkID, DocumentID: documentID, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vector_points WHERE document_id = ?`, documentID)
	return err
}

func (s *Store) GetStats(ctx context.Context) (vectorstore.Stats, error) {
	var stats vectorstore.Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_points`).Scan(&stats.TotalPoints); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT project_id) FROM vector_points`).Scan(&stats.TotalProjects); err != nil {
		return stats, err
	}
	return stats, nil
}

// GCDanglingPoints removes points whose chunk_id is not in liveChunkIDs,
// run hourly by the Embedding Worker per spec.md §5.
func (s *Store) GCDanglingPoints(ctx context.Context, liveChunkIDs map[string]struct{}) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM vector_points`)
	if err != nil {
		return 0, err
	}
	var toDelete []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := liveChunkIDs[id]; !ok {
			toDelete = append(toDelete, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, id := range toDelete {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM vector_points WHERE chunk_id = ?`, id); err != nil {
			return 0, err
		}
	}
	return len(toDelete), nil
}

func (s *Store) Close() error { return s.db.Close() }

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ vectorstore.Store = (*Store)(nil)
