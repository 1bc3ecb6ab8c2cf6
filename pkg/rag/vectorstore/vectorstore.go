// Package vectorstore defines the pluggable vector backend interface from
// spec.md §6: initialize/insert_embeddings/search/delete_by_document/
// get_stats, implemented by the sqlitevec and qdrant sub-packages. Grounded
// on pkg/rag/strategy/vector_store.go's Store interface shape.
package vectorstore

import "context"

// Point is a single embedded chunk ready for upsert.
type Point struct {
	ChunkID    string
	DocumentID string
	ProjectID  string
	Embedding  []float64
	FilePath   string
	Language   string
}

// Match is a single search hit returned by the vector backend, carrying
// only what the Retriever's semantic searcher needs to build a Hit.
type Match struct {
	ChunkID    string
	DocumentID string
	Score      float64
}

// Stats summarizes the current state of the backend, surfaced by
// admin/debug endpoints and the Embedding Worker's GC logging.
type Stats struct {
	TotalPoints   int
	TotalProjects int
}

// Store is the Vector Backend component contract. Implementations:
// sqlitevec (brute-force cosine over modernc.org/sqlite) and qdrant (ANN
// over github.com/qdrant/go-client).
type Store interface {
	// Initialize prepares backing storage (schema, collection) for use.
	Initialize(ctx context.Context) error

	// InsertEmbeddings upserts points in batches of at most 100 per
	// commit, rolling back the whole batch on partial failure, per
	// spec.md §5's transaction rule.
	InsertEmbeddings(ctx context.Context, points []Point) error

	// Search returns the top-`limit` matches by cosine similarity,
	// scoped to the given project IDs (nil/empty means all projects) and
	// filtered to scores >= scoreThreshold.
	Search(ctx context.Context, queryEmbedding []float64, limit int, projectIDs []string, scoreThreshold float64) ([]Match, error)

	// DeleteByDocument removes every point belonging to a document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// GetStats reports backend-wide counters.
	GetStats(ctx context.Context) (Stats, error)

	// GCDanglingPoints removes points whose owning chunk/document no
	// longer exists, used by the Embedding Worker's hourly GC pass.
	GCDanglingPoints(ctx context.Context, liveChunkIDs map[string]struct{}) (int, error)

	Close() error
}

// BatchSize is the max points committed per transaction (spec.md §5).
const BatchSize = 100

// Batches splits points into chunks of at most BatchSize.
func Batches(points []Point) [][]Point {
	if len(points) == 0 {
		return nil
	}
	var out [][]Point
	for i := 0; i < len(points); i += BatchSize {
		end := i + BatchSize
		if end > len(points) {
			end = len(points)
		}
		out = append(out, points[i:end])
	}
	return out
}
