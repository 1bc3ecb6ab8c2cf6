package retriever

import (
	"context"
	"testing"

	"github.com/agentplane/ragcore/pkg/rag/vectorstore"
	"github.com/agentplane/ragcore/pkg/store"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vec []float64
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return f.vec, f.err
}

// fakeVectorStore returns a fixed set of matches regardless of the query
// embedding, letting semantic_test exercise filtering/chunk-joining logic
// without a real ANN backend.
type fakeVectorStore struct {
	matches []vectorstore.Match
}

func (f *fakeVectorStore) Initialize(ctx context.Context) error { return nil }
func (f *fakeVectorStore) InsertEmbeddings(ctx context.Context, points []vectorstore.Point) error {
	return nil
}
func (f *fakeVectorStore) Search(ctx context.Context, queryEmbedding []float64, limit int, projectIDs []string, scoreThreshold float64) ([]vectorstore.Match, error) {
	return f.matches, nil
}
func (f *fakeVectorStore) DeleteByDocument(ctx context.Context, documentID string) error { return nil }
func (f *fakeVectorStore) GetStats(ctx context.Context) (vectorstore.Stats, error) {
	return vectorstore.Stats{}, nil
}
func (f *fakeVectorStore) GCDanglingPoints(ctx context.Context, liveChunkIDs map[string]struct{}) (int, error) {
	return 0, nil
}
func (f *fakeVectorStore) Close() error { return nil }

var _ vectorstore.Store = (*fakeVectorStore)(nil)

func TestSemanticSearchJoinsChunkContentAndAppliesLanguageFilter(t *testing.T) {
	s := newTestStore(t)
	seedProjectWithChunks(t, s, "p1", map[string][]store.Chunk{
		"a.go": {{ID: "go-chunk", Content: "package main"}},
		"a.py": {{ID: "py-chunk", Content: "def main(): pass"}},
	})
	// seedProjectWithChunks hardcodes language "go" for every document; give
	// the python one a distinct language directly.
	require.NoError(t, s.UpsertDocument(context.Background(), &store.Document{
		ID: "p1-a.py", ProjectID: "p1", FilePath: "a.py", Language: "python",
	}))

	vs := &fakeVectorStore{matches: []vectorstore.Match{
		{ChunkID: "go-chunk", Score: 0.9},
		{ChunkID: "py-chunk", Score: 0.95},
	}}
	emb := &fakeEmbedder{vec: []float64{0.1, 0.2}}

	hits, err := semanticSearch(context.Background(), s, vs, emb, []string{"p1"}, "query", Filters{Language: "go"}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "go-chunk", hits[0].ChunkID)
	require.Equal(t, SearchTypeSemantic, hits[0].SearchType)
}

func TestSemanticSearchReturnsNilOnNoMatches(t *testing.T) {
	s := newTestStore(t)
	seedProjectWithChunks(t, s, "p1", map[string][]store.Chunk{"a.go": {{ID: "c1", Content: "x"}}})

	vs := &fakeVectorStore{}
	emb := &fakeEmbedder{vec: []float64{0.1}}

	hits, err := semanticSearch(context.Background(), s, vs, emb, []string{"p1"}, "query", Filters{}, 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestSemanticSearchPropagatesEmbedderError(t *testing.T) {
	s := newTestStore(t)
	vs := &fakeVectorStore{}
	emb := &fakeEmbedder{err: context.DeadlineExceeded}

	_, err := semanticSearch(context.Background(), s, vs, emb, []string{"p1"}, "query", Filters{}, 5)
	require.Error(t, err)
}
