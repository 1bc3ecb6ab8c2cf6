package retriever

import (
	"context"
	"regexp"
	"strings"

	"github.com/agentplane/ragcore/pkg/store"
)

// structuralPrefix identifies a recognized query prefix and how it should
// be dispatched, per spec.md §4.E's structural pre-parse list.
type structuralPrefix struct {
	prefix string
	kind   string // "structural", "doc", "git_commit", "git_blame", "lint", "file_line"
}

var structuralPrefixes = []structuralPrefix{
	{"func:", "structural"},
	{"class:", "structural"},
	{"method:", "structural"},
	{"interface:", "structural"},
	{"type:", "structural"},
	{"import:", "structural"},
	{"blame:", "git_blame"},
	{"commit:", "git_commit"},
	{"doc:", "doc"},
	{"lint:", "lint"},
	{"file:", "file_line"},
}

var fileLinePattern = regexp.MustCompile(`^(\S+):(\d+)$`)

// structuralDispatch is the result of recognizing a prefixed query.
type structuralDispatch struct {
	matched bool
	kind    string
	rest    string
}

// parseStructuralPrefix recognizes the prefixes from spec.md §4.E. A bare
// "<file>:<line>" query (no named prefix) is treated as file_line too.
func parseStructuralPrefix(query string) structuralDispatch {
	for _, p := range structuralPrefixes {
		if strings.HasPrefix(query, p.prefix) {
			return structuralDispatch{matched: true, kind: p.kind, rest: strings.TrimPrefix(query, p.prefix)}
		}
	}
	if fileLinePattern.MatchString(query) {
		return structuralDispatch{matched: true, kind: "file_line", rest: query}
	}
	return structuralDispatch{}
}

// structuralSearch runs a symbol_name match against chunks, scoring exact
// match 1.0, prefix match 0.9, substring match 0.7 per spec.md §4.E.
func structuralSearch(ctx context.Context, db *store.Store, projectIDs []string, name string, limit int) ([]Hit, error) {
	chunks, err := db.AllChunks(ctx, projectIDs)
	if err != nil {
		return nil, err
	}

	lowerName := strings.ToLower(name)
	var hits []Hit
	for _, c := range chunks {
		if c.SymbolName == "" {
			continue
		}
		lowerSymbol := strings.ToLower(c.SymbolName)

		var score float64
		switch {
		case lowerSymbol == lowerName:
			score = 1.0
		case strings.HasPrefix(lowerSymbol, lowerName):
			score = 0.9
		case strings.Contains(lowerSymbol, lowerName):
			score = 0.7
		default:
			continue
		}

		hits = append(hits, Hit{
			SearchType:      SearchTypeStructural,
			Score:           score,
			structuralScore: score,
			DocumentID:      c.DocumentID,
			ChunkID:         c.ID,
			Content:         c.Content,
			StartLine:       c.StartLine,
			EndLine:         c.EndLine,
			FilePath:        c.FilePath,
			Language:        c.Language,
			SymbolName:      c.SymbolName,
			SymbolType:      c.SymbolType,
		})
	}

	sortHitsDesc(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
