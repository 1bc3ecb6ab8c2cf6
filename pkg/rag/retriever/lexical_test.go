package retriever

import (
	"context"
	"testing"
	"time"

	"github.com/agentplane/ragcore/pkg/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedProjectWithChunks(t *testing.T, s *store.Store, projectID string, docs map[string][]store.Chunk) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, &store.Project{ID: projectID, OwnerID: "u1", Status: store.ProjectActive, CreatedAt: time.Now()}))
	for filePath, chunks := range docs {
		docID := projectID + "-" + filePath
		require.NoError(t, s.UpsertDocument(ctx, &store.Document{ID: docID, ProjectID: projectID, FilePath: filePath, Language: "go"}))
		for i := range chunks {
			chunks[i].DocumentID = docID
		}
		require.NoError(t, s.ReplaceChunks(ctx, docID, chunks))
	}
}

func TestLexicalSearchRanksByBM25AndSymbolBoost(t *testing.T) {
	s := newTestStore(t)
	seedProjectWithChunks(t, s, "p1", map[string][]store.Chunk{
		"a.go": {
			{ID: "c1", Content: "func ParseConfig reads configuration from disk and returns an error on failure", SymbolName: "ParseConfig", SymbolType: "func"},
			{ID: "c2", Content: "unrelated content about rendering widgets on screen"},
		},
	})

	hits, err := lexicalSearch(context.Background(), s, []string{"p1"}, "parse config error", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	if hits[0].ChunkID != "c1" {
		t.Errorf("expected c1 to rank first, got %s", hits[0].ChunkID)
	}
	if hits[0].SearchType != SearchTypeKeyword {
		t.Errorf("expected SearchTypeKeyword, got %s", hits[0].SearchType)
	}
}

func TestLexicalSearchExpandsSynonyms(t *testing.T) {
	s := newTestStore(t)
	seedProjectWithChunks(t, s, "p1", map[string][]store.Chunk{
		"a.go": {{ID: "c1", Content: "this method handles retries and backoff for the request"}},
	})

	hits, err := lexicalSearch(context.Background(), s, []string{"p1"}, "function retries backoff", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits, "expected 'function' to match via its 'method' synonym")
}

func TestLexicalSearchReturnsNilWhenNoChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, &store.Project{ID: "empty", OwnerID: "u1", Status: store.ProjectActive, CreatedAt: time.Now()}))

	hits, err := lexicalSearch(ctx, s, []string{"empty"}, "anything", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}
