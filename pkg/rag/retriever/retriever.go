package retriever

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/agentplane/ragcore/pkg/rag/vectorstore"
	"github.com/agentplane/ragcore/pkg/store"
)

// Retriever is the Hybrid Retriever component (spec.md §4.E): it fuses
// semantic, keyword and structural search, with a structural prefix
// dispatcher that short-circuits fusion for exact-intent queries.
type Retriever struct {
	db       *store.Store
	vs       vectorstore.Store
	embedder Embedder
	git      GitSearcher
	linter   Linter
}

// New builds a Retriever. git and linter may be nil; commit:/blame:/lint:
// queries then return an empty result instead of erroring, matching the
// per-modality graceful-degradation rule in spec.md §4.E.
func New(db *store.Store, vs vectorstore.Store, embedder Embedder, git GitSearcher, linter Linter) *Retriever {
	return &Retriever{db: db, vs: vs, embedder: embedder, git: git, linter: linter}
}

// Search is the Hybrid Retriever's single entry point.
//
// A recognized structural prefix (func:, class:, doc:, commit:, blame:,
// lint:, file:, or a bare file:line) short-circuits the fusion pipeline
// entirely and dispatches to the matching modality. Otherwise the query
// type is detected, its fusion weights looked up, and semantic/keyword/
// structural search run concurrently, fused by chunk_id keeping the max
// blended score.
func (r *Retriever) Search(ctx context.Context, query string, projectIDs []string, filters Filters, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	if dispatch := parseStructuralPrefix(query); dispatch.matched {
		return r.dispatch(ctx, dispatch, projectIDs, filters, limit)
	}

	qt := DetectQueryType(query)
	weights := WeightsFor(qt)
	return r.fusedSearch(ctx, query, projectIDs, filters, limit, weights)
}

func (r *Retriever) dispatch(ctx context.Context, d structuralDispatch, projectIDs []string, filters Filters, limit int) ([]Hit, error) {
	switch d.kind {
	case "structural":
		return structuralSearch(ctx, r.db, projectIDs, d.rest, limit)

	case "doc":
		// doc: queries route to semantic+keyword scoped to markdown files,
		// per spec.md §4.E, rather than the structural symbol searcher.
		docFilters := filters
		docFilters.FilePathGlob = "**/*.md"
		return r.fusedSearch(ctx, d.rest, projectIDs, docFilters, limit, WeightsFor(QueryConceptual))

	case "git_commit":
		if r.git == nil {
			slog.Warn("retriever: commit: query received but no GitSearcher configured")
			return nil, nil
		}
		return r.git.SearchCommits(ctx, d.rest, limit)

	case "git_blame":
		file, line, ok := splitFileLine(d.rest)
		if !ok {
			return nil, nil
		}
		if r.git == nil {
			slog.Warn("retriever: blame: query received but no GitSearcher configured")
			return nil, nil
		}
		return r.git.Blame(ctx, file, line)

	case "lint":
		if r.linter == nil {
			slog.Warn("retriever: lint: query received but no Linter configured")
			return nil, nil
		}
		return r.linter.Lint(ctx, d.rest, projectIDs, limit)

	case "file_line":
		file, line, ok := splitFileLine(d.rest)
		if !ok {
			return structuralSearch(ctx, r.db, projectIDs, d.rest, limit)
		}
		return r.fileLineSearch(ctx, projectIDs, file, line, limit)

	default:
		return nil, nil
	}
}

func splitFileLine(s string) (file string, line int, ok bool) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return "", 0, false
	}
	return s[:idx], n, true
}

// fileLineSearch returns chunks from the named file whose line range
// contains the requested line.
func (r *Retriever) fileLineSearch(ctx context.Context, projectIDs []string, file string, line, limit int) ([]Hit, error) {
	chunks, err := r.db.AllChunks(ctx, projectIDs)
	if err != nil {
		return nil, err
	}
	var hits []Hit
	for _, c := range chunks {
		if !strings.HasSuffix(c.FilePath, file) && c.FilePath != file {
			continue
		}
		if line < c.StartLine || line > c.EndLine {
			continue
		}
		hits = append(hits, Hit{
			SearchType: SearchTypeStructural,
			Score:      1.0,
			DocumentID: c.DocumentID,
			ChunkID:    c.ID,
			Content:    c.Content,
			StartLine:  c.StartLine,
			EndLine:    c.EndLine,
			FilePath:   c.FilePath,
			Language:   c.Language,
			SymbolName: c.SymbolName,
			SymbolType: c.SymbolType,
		})
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// fusedSearch runs semantic, keyword and structural search and fuses their
// results by chunk_id, keeping the max blended score per spec.md §4.E:
// blended = weights.Semantic*semanticScore + weights.Keyword*keywordScore
// + weights.Structural*structuralScore, using 0 for modalities a hit did
// not appear in. Each modality degrades gracefully on its own error: a
// failing modality is logged and simply contributes no hits, rather than
// failing the whole search.
func (r *Retriever) fusedSearch(ctx context.Context, query string, projectIDs []string, filters Filters, limit int, weights Weights) ([]Hit, error) {
	var semanticHits, keywordHits, structuralHits []Hit

	if r.vs != nil && r.embedder != nil {
		hits, err := semanticSearch(ctx, r.db, r.vs, r.embedder, projectIDs, query, filters, limit)
		if err != nil {
			slog.Warn("retriever: semantic search failed, degrading", "error", err)
		} else {
			semanticHits = hits
		}
	}

	hits, err := lexicalSearch(ctx, r.db, projectIDs, query, limit*2)
	if err != nil {
		slog.Warn("retriever: keyword search failed, degrading", "error", err)
	} else {
		keywordHits = hits
	}

	hits, err = structuralSearch(ctx, r.db, projectIDs, query, limit*2)
	if err != nil {
		slog.Warn("retriever: structural search failed, degrading", "error", err)
	} else {
		structuralHits = hits
	}

	fused := fuse(semanticHits, keywordHits, structuralHits, weights)
	fused = applyHitFilters(fused, filters)

	sortHitsDesc(fused)
	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

// fused tracks the per-modality scores seen so far for one chunk_id, so a
// chunk appearing in more than one modality's results gets its blended
// score recomputed from all contributing scores rather than the first one
// seen.
type fusedEntry struct {
	hit             Hit
	modalities      int
	semanticScore   float64
	keywordScore    float64
	structuralScore float64
}

func fuse(semanticHits, keywordHits, structuralHits []Hit, weights Weights) []Hit {
	entries := make(map[string]*fusedEntry)

	merge := func(hits []Hit, assign func(e *fusedEntry, score float64)) {
		for _, h := range hits {
			e, ok := entries[h.ChunkID]
			if !ok {
				e = &fusedEntry{hit: h}
				entries[h.ChunkID] = e
			}
			assign(e, h.Score)
			e.modalities++
			if h.FilePath != "" {
				e.hit.FilePath = h.FilePath
			}
			if h.Language != "" {
				e.hit.Language = h.Language
			}
			if h.SymbolName != "" {
				e.hit.SymbolName = h.SymbolName
				e.hit.SymbolType = h.SymbolType
			}
		}
	}

	merge(semanticHits, func(e *fusedEntry, score float64) { e.semanticScore = score })
	merge(keywordHits, func(e *fusedEntry, score float64) { e.keywordScore = score })
	merge(structuralHits, func(e *fusedEntry, score float64) { e.structuralScore = score })

	out := make([]Hit, 0, len(entries))
	for _, e := range entries {
		blended := weights.Semantic*e.semanticScore + weights.Keyword*e.keywordScore + weights.Structural*e.structuralScore
		h := e.hit
		h.Score = blended
		h.semanticScore = e.semanticScore
		h.keywordScore = e.keywordScore
		h.structuralScore = e.structuralScore
		if e.modalities > 1 {
			h.SearchType = SearchTypeHybrid
		}
		out = append(out, h)
	}
	return out
}

// applyHitFilters re-checks language/path filters across the fused result
// set. Semantic search already applies them before fusion; keyword and
// structural hits have not, so this is the defensive final pass.
func applyHitFilters(hits []Hit, filters Filters) []Hit {
	if filters.Language == "" && filters.FilePathPrefix == "" && filters.FilePathGlob == "" {
		return hits
	}
	globSuffix := strings.TrimPrefix(filters.FilePathGlob, "**/*")

	kept := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if filters.Language != "" && h.Language != "" && !strings.EqualFold(h.Language, filters.Language) {
			continue
		}
		if filters.FilePathPrefix != "" && h.FilePath != "" && !strings.HasPrefix(h.FilePath, filters.FilePathPrefix) {
			continue
		}
		if globSuffix != "" && h.FilePath != "" && !strings.HasSuffix(h.FilePath, globSuffix) {
			continue
		}
		kept = append(kept, h)
	}
	return kept
}

func sortHitsDesc(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
}
