package retriever

import (
	"context"
	"testing"

	"github.com/agentplane/ragcore/pkg/store"
	"github.com/stretchr/testify/require"
)

func TestStructuralSearchScoresExactPrefixAndSubstring(t *testing.T) {
	s := newTestStore(t)
	seedProjectWithChunks(t, s, "p1", map[string][]store.Chunk{
		"a.go": {
			{ID: "exact", Content: "...", SymbolName: "ParseConfig", SymbolType: "func"},
			{ID: "prefix", Content: "...", SymbolName: "ParseConfigFile", SymbolType: "func"},
			{ID: "substring", Content: "...", SymbolName: "TryParseConfigOrDie", SymbolType: "func"},
			{ID: "nomatch", Content: "...", SymbolName: "Unrelated", SymbolType: "func"},
		},
	})

	hits, err := structuralSearch(context.Background(), s, []string{"p1"}, "ParseConfig", 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	scores := map[string]float64{}
	for _, h := range hits {
		scores[h.ChunkID] = h.Score
	}
	require.InDelta(t, 1.0, scores["exact"], 1e-9)
	require.InDelta(t, 0.9, scores["prefix"], 1e-9)
	require.InDelta(t, 0.7, scores["substring"], 1e-9)

	if hits[0].ChunkID != "exact" || hits[1].ChunkID != "prefix" || hits[2].ChunkID != "substring" {
		t.Errorf("expected exact > prefix > substring ordering, got %v", hits)
	}
}

func TestStructuralSearchSkipsChunksWithoutSymbolName(t *testing.T) {
	s := newTestStore(t)
	seedProjectWithChunks(t, s, "p1", map[string][]store.Chunk{
		"a.go": {{ID: "c1", Content: "no symbol here"}},
	})

	hits, err := structuralSearch(context.Background(), s, []string{"p1"}, "anything", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestParseStructuralPrefixStripsPrefixFromRest(t *testing.T) {
	d := parseStructuralPrefix("func:ParseConfig")
	require.True(t, d.matched)
	require.Equal(t, "structural", d.kind)
	require.Equal(t, "ParseConfig", d.rest)
}
