package sqlitevec

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplane/ragcore/pkg/rag/vectorstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vec.db"))
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSearchRanksByCosineSimilarity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertEmbeddings(ctx, []vectorstore.Point{
		{ChunkID: "close", DocumentID: "doc-1", ProjectID: "proj-1", Embedding: []float64{1, 0, 0}},
		{ChunkID: "orthogonal", DocumentID: "doc-1", ProjectID: "proj-1", Embedding: []float64{0, 1, 0}},
		{ChunkID: "opposite", DocumentID: "doc-1", ProjectID: "proj-1", Embedding: []float64{-1, 0, 0}},
	}))

	matches, err := s.Search(ctx, []float64{1, 0, 0}, 10, nil, -1)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "close", matches[0].ChunkID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "opposite", matches[len(matches)-1].ChunkID)
}

func TestSearchRespectsProjectFilterAndThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertEmbeddings(ctx, []vectorstore.Point{
		{ChunkID: "a", DocumentID: "doc-1", ProjectID: "proj-1", Embedding: []float64{1, 0}},
		{ChunkID: "b", DocumentID: "doc-2", ProjectID: "proj-2", Embedding: []float64{1, 0}},
	}))

	matches, err := s.Search(ctx, []float64{1, 0}, 10, []string{"proj-1"}, 0.99)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ChunkID)
}

func TestDeleteByDocumentRemovesOnlyThatDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertEmbeddings(ctx, []vectorstore.Point{
		{ChunkID: "a", DocumentID: "doc-1", ProjectID: "proj-1", Embedding: []float64{1, 0}},
		{ChunkID: "b", DocumentID: "doc-2", ProjectID: "proj-1", Embedding: []float64{1, 0}},
	}))

	require.NoError(t, s.DeleteByDocument(ctx, "doc-1"))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalPoints)
}

func TestGCDanglingPointsRemovesOrphans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertEmbeddings(ctx, []vectorstore.Point{
		{ChunkID: "live", DocumentID: "doc-1", ProjectID: "proj-1", Embedding: []float64{1, 0}},
		{ChunkID: "orphan", DocumentID: "doc-2", ProjectID: "proj-1", Embedding: []float64{1, 0}},
	}))

	removed, err := s.GCDanglingPoints(ctx, map[string]struct{}{"live": {}})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalPoints)
}

func TestInsertEmbeddingsBatchesAcrossCommits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	points := make([]vectorstore.Point, 0, vectorstore.BatchSize+10)
	for i := 0; i < vectorstore.BatchSize+10; i++ {
		points = append(points, vectorstore.Point{
			ChunkID: fmt.Sprintf("chunk-%d", i), DocumentID: "doc-1", ProjectID: "proj-1", Embedding: []float64{1, 0},
		})
	}
	require.NoError(t, s.InsertEmbeddings(ctx, points))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(points), stats.TotalPoints)
}
