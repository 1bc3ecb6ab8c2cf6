package retriever

import (
	"context"
	"math"
	"strings"

	"github.com/agentplane/ragcore/pkg/store"
)

// Okapi BM25 parameters, matching the teacher's BM25 strategy defaults.
const (
	bm25K1 = 1.5
	bm25B  = 0.75

	// symbolNameBoost multiplies the score of a chunk whose symbol_name
	// contains the query term, per spec.md §4.E's keyword search.
	symbolNameBoost = 1.5
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "as": true, "by": true, "is": true,
	"was": true, "are": true, "were": true, "be": true, "been": true,
}

// synonyms expands a query term into equivalent terms before scoring, per
// spec.md §4.E's example expansion ("function" -> func/method/def).
var synonyms = map[string][]string{
	"function": {"func", "method", "def"},
	"error":    {"exception", "err", "fail"},
	"variable": {"var", "field"},
	"remove":   {"delete", "unset"},
}

var punctReplacer = strings.NewReplacer(
	".", " ", ",", " ", "!", " ", "?", " ",
	";", " ", ":", " ", "(", " ", ")", " ",
	"[", " ", "]", " ", "{", " ", "}", " ",
	"\"", " ", "'", " ", "\n", " ", "\t", " ",
)

func tokenize(text string) []string {
	text = strings.ToLower(text)
	text = punctReplacer.Replace(text)

	tokens := strings.Fields(text)
	filtered := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(t) > 2 && !stopwords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func expandTerms(terms []string) []string {
	expanded := make([]string, 0, len(terms))
	seen := make(map[string]bool)
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			expanded = append(expanded, t)
		}
	}
	for _, t := range terms {
		add(t)
		for _, syn := range synonyms[t] {
			add(syn)
		}
	}
	return expanded
}

// lexicalSearch performs BM25-style keyword scoring over chunk content,
// boosting chunks whose symbol_name matches a query term. Scores are
// normalized to [0,1] to be comparable with semantic/structural scores.
func lexicalSearch(ctx context.Context, db *store.Store, projectIDs []string, query string, limit int) ([]Hit, error) {
	chunks, err := db.AllChunks(ctx, projectIDs)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	queryTerms := expandTerms(tokenize(query))
	if len(queryTerms) == 0 {
		return nil, nil
	}

	type docTerms struct {
		chunk  store.Chunk
		terms  []string
		freq   map[string]int
		length int
	}

	docs := make([]docTerms, len(chunks))
	var totalLength int
	df := make(map[string]int)
	for i, c := range chunks {
		terms := tokenize(c.Content)
		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}
		docs[i] = docTerms{chunk: c, terms: terms, freq: freq, length: len(terms)}
		totalLength += len(terms)

		seenInDoc := make(map[string]bool)
		for _, qt := range queryTerms {
			if freq[qt] > 0 && !seenInDoc[qt] {
				df[qt]++
				seenInDoc[qt] = true
			}
		}
	}
	avgLength := float64(totalLength) / float64(len(docs))
	if avgLength == 0 {
		avgLength = 1
	}

	var maxScore float64
	raw := make([]Hit, 0, len(docs))
	for _, d := range docs {
		var score float64
		for _, qt := range queryTerms {
			tf := float64(d.freq[qt])
			if tf == 0 {
				continue
			}
			docFreq := float64(df[qt])
			if docFreq == 0 {
				continue
			}
			idf := math.Log((float64(len(docs))-docFreq+0.5)/(docFreq+0.5) + 1.0)
			numerator := tf * (bm25K1 + 1.0)
			denominator := tf + bm25K1*(1.0-bm25B+bm25B*(float64(d.length)/avgLength))
			score += idf * (numerator / denominator)
		}
		if score <= 0 {
			continue
		}

		lowerSymbol := strings.ToLower(d.chunk.SymbolName)
		if lowerSymbol != "" {
			for _, qt := range queryTerms {
				if strings.Contains(lowerSymbol, qt) {
					score *= symbolNameBoost
					break
				}
			}
		}

		if score > maxScore {
			maxScore = score
		}
		raw = append(raw, Hit{
			SearchType: SearchTypeKeyword,
			Score:      score,
			DocumentID: d.chunk.DocumentID,
			ChunkID:    d.chunk.ID,
			Content:    d.chunk.Content,
			StartLine:  d.chunk.StartLine,
			EndLine:    d.chunk.EndLine,
			FilePath:   d.chunk.FilePath,
			Language:   d.chunk.Language,
			SymbolName: d.chunk.SymbolName,
			SymbolType: d.chunk.SymbolType,
		})
	}

	if maxScore > 0 {
		for i := range raw {
			raw[i].Score /= maxScore
			raw[i].keywordScore = raw[i].Score
		}
	}

	sortHitsDesc(raw)
	if limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}
	return raw, nil
}
