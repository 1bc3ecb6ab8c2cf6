package retriever

import (
	"context"
	"testing"

	"github.com/agentplane/ragcore/pkg/rag/vectorstore"
	"github.com/agentplane/ragcore/pkg/store"
	"github.com/stretchr/testify/require"
)

func TestRetrieverSearchDispatchesStructuralPrefixWithoutFusion(t *testing.T) {
	s := newTestStore(t)
	seedProjectWithChunks(t, s, "p1", map[string][]store.Chunk{
		"a.go": {{ID: "c1", Content: "...", SymbolName: "Handle", SymbolType: "func"}},
	})

	r := New(s, nil, nil, nil, nil)
	hits, err := r.Search(context.Background(), "func:Handle", []string{"p1"}, Filters{}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "c1", hits[0].ChunkID)
}

func TestRetrieverSearchDegradesWhenVectorStoreAbsent(t *testing.T) {
	s := newTestStore(t)
	seedProjectWithChunks(t, s, "p1", map[string][]store.Chunk{
		"a.go": {{ID: "c1", Content: "implement retry backoff for failing requests"}},
	})

	r := New(s, nil, nil, nil, nil)
	hits, err := r.Search(context.Background(), "how do I implement retry backoff", []string{"p1"}, Filters{}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits, "keyword search should still surface results without a vector backend")
}

func TestRetrieverSearchFusesSemanticAndKeywordHits(t *testing.T) {
	s := newTestStore(t)
	seedProjectWithChunks(t, s, "p1", map[string][]store.Chunk{
		"a.go": {{ID: "c1", Content: "implement retry backoff for failing requests"}},
	})

	vs := &fakeVectorStore{matches: []vectorstore.Match{{ChunkID: "c1", Score: 0.9}}}
	emb := &fakeEmbedder{vec: []float64{0.1}}

	r := New(s, vs, emb, nil, nil)
	hits, err := r.Search(context.Background(), "how do I implement retry backoff", []string{"p1"}, Filters{}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, "c1", hits[0].ChunkID)
	require.Equal(t, SearchTypeHybrid, hits[0].SearchType)
}

func TestRetrieverSearchCommitDispatchWithoutGitSearcherReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	r := New(s, nil, nil, nil, nil)
	hits, err := r.Search(context.Background(), "commit:abc123", []string{"p1"}, Filters{}, 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestRetrieverSearchDocPrefixRoutesToFilteredFusion(t *testing.T) {
	s := newTestStore(t)
	seedProjectWithChunks(t, s, "p1", map[string][]store.Chunk{
		"README.md": {{ID: "doc1", Content: "installation guide for setting things up"}},
		"main.go":   {{ID: "code1", Content: "installation guide appears in a comment here too"}},
	})

	r := New(s, nil, nil, nil, nil)
	hits, err := r.Search(context.Background(), "doc:installation guide", []string{"p1"}, Filters{}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		require.Equal(t, "README.md", h.FilePath)
	}
}
