// Package retriever implements the Hybrid Retriever (spec.md §4.E): lexical
// (BM25-ish full-text), semantic (ANN), and structural (symbol-name) search
// fused by query-type-adaptive weights, plus the structural prefix
// dispatcher for func:/class:/doc:/commit:/lint: style queries.
package retriever

import "context"

// SearchType tags which modality (or combination) produced a Hit.
type SearchType string

const (
	SearchTypeSemantic   SearchType = "semantic"
	SearchTypeKeyword    SearchType = "keyword"
	SearchTypeStructural SearchType = "structural"
	SearchTypeHybrid     SearchType = "hybrid"
)

// Hit is one search result, matching spec.md §4.E's contract shape.
// SearchType records which modality produced it; after fusion it is set to
// SearchTypeHybrid whenever more than one modality contributed.
type Hit struct {
	SearchType SearchType
	Score      float64
	DocumentID string
	ChunkID    string
	Content    string
	FilePath   string
	StartLine  int
	EndLine    int
	SymbolName string
	SymbolType string
	Language   string
	Metadata   map[string]string

	semanticScore   float64
	keywordScore    float64
	structuralScore float64
}

// Filters narrows a search beyond the project scope.
type Filters struct {
	Language       string
	FilePathGlob   string // e.g. "**/*.md" for doc: dispatch
	FilePathPrefix string
}

// Embedder produces a unit-normalized query embedding. Satisfied by
// pkg/rag/embed.Embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// GitSearcher dispatches commit:/blame: queries to an external Git search,
// returning hits directly without going through fusion.
type GitSearcher interface {
	SearchCommits(ctx context.Context, query string, limit int) ([]Hit, error)
	Blame(ctx context.Context, file string, line int) ([]Hit, error)
}

// Linter dispatches lint: queries to a static analyzer, returning hits
// directly without going through fusion.
type Linter interface {
	Lint(ctx context.Context, query string, projectIDs []string, limit int) ([]Hit, error)
}
