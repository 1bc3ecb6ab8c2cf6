package retriever

import (
	"context"
	"strings"

	"github.com/agentplane/ragcore/pkg/rag/vectorstore"
	"github.com/agentplane/ragcore/pkg/store"
)

// semanticSearch embeds the query and runs an ANN search against the vector
// backend, then applies language/path filters and attaches chunk content
// from the relational store. Returns up to limit*2 hits per spec.md §4.E so
// the fusion step has enough candidates to re-rank.
func semanticSearch(ctx context.Context, db *store.Store, vs vectorstore.Store, embedder Embedder, projectIDs []string, query string, filters Filters, limit int) ([]Hit, error) {
	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	searchLimit := limit * 2
	if searchLimit <= 0 {
		searchLimit = 20
	}

	matches, err := vs.Search(ctx, vec, searchLimit, projectIDs, 0)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	chunkIDs := make(map[string]vectorstore.Match, len(matches))
	for _, m := range matches {
		chunkIDs[m.ChunkID] = m
	}

	chunks, err := db.AllChunks(ctx, projectIDs)
	if err != nil {
		return nil, err
	}

	globSuffix := ""
	if filters.FilePathGlob != "" {
		globSuffix = strings.TrimPrefix(filters.FilePathGlob, "**/*")
	}

	var hits []Hit
	for _, c := range chunks {
		m, ok := chunkIDs[c.ID]
		if !ok {
			continue
		}
		if filters.Language != "" && !strings.EqualFold(c.Language, filters.Language) {
			continue
		}
		if filters.FilePathPrefix != "" && !strings.HasPrefix(c.FilePath, filters.FilePathPrefix) {
			continue
		}
		if globSuffix != "" && !strings.HasSuffix(c.FilePath, globSuffix) {
			continue
		}

		hits = append(hits, Hit{
			SearchType:    SearchTypeSemantic,
			Score:         m.Score,
			semanticScore: m.Score,
			DocumentID:    c.DocumentID,
			ChunkID:       c.ID,
			Content:       c.Content,
			StartLine:     c.StartLine,
			EndLine:       c.EndLine,
			FilePath:      c.FilePath,
			SymbolName:    c.SymbolName,
			SymbolType:    c.SymbolType,
			Language:      c.Language,
		})
	}

	sortHitsDesc(hits)
	return hits, nil
}
