package retriever

import (
	"math"
	"testing"
)

// TestFuseMatchesSpecScenario reproduces spec.md §8 scenario 5 exactly:
// 3 semantic hits [0.9,0.7,0.5] and 2 keyword hits [0.8,0.3] on a
// conceptual query (weights 0.8/0.1/0.1); the top fused hit (shared
// between both lists) must blend to 0.8*0.9 + 0.1*0.8 = 0.80.
func TestFuseMatchesSpecScenario(t *testing.T) {
	semanticHits := []Hit{
		{ChunkID: "c1", Score: 0.9, semanticScore: 0.9},
		{ChunkID: "c2", Score: 0.7, semanticScore: 0.7},
		{ChunkID: "c3", Score: 0.5, semanticScore: 0.5},
	}
	keywordHits := []Hit{
		{ChunkID: "c1", Score: 0.8, keywordScore: 0.8},
		{ChunkID: "c4", Score: 0.3, keywordScore: 0.3},
	}

	weights := WeightsFor(QueryConceptual)
	fused := fuse(semanticHits, keywordHits, nil, weights)
	sortHitsDesc(fused)

	if len(fused) == 0 {
		t.Fatal("expected at least one fused hit")
	}
	top := fused[0]
	if top.ChunkID != "c1" {
		t.Fatalf("expected top hit c1, got %s", top.ChunkID)
	}
	if math.Abs(top.Score-0.80) > 1e-9 {
		t.Errorf("got blended score %f, want 0.80", top.Score)
	}
	if top.SearchType != SearchTypeHybrid {
		t.Errorf("expected SearchTypeHybrid for a hit present in two modalities, got %s", top.SearchType)
	}
}

func TestFuseKeepsMaxBlendedScorePerChunkNotSum(t *testing.T) {
	// A chunk id appearing only once per modality list must never have
	// its score summed beyond the single blended computation.
	semanticHits := []Hit{{ChunkID: "only", Score: 1.0, semanticScore: 1.0}}
	weights := Weights{Semantic: 0.5, Keyword: 0.5, Structural: 0}

	fused := fuse(semanticHits, nil, nil, weights)
	if len(fused) != 1 {
		t.Fatalf("expected 1 fused hit, got %d", len(fused))
	}
	if fused[0].Score != 0.5 {
		t.Errorf("got %f, want 0.5 (0.5*1.0 + 0.5*0)", fused[0].Score)
	}
	if fused[0].SearchType == SearchTypeHybrid {
		t.Error("a hit found by only one modality should not be marked hybrid")
	}
}

func TestFuseDedupesAcrossAllThreeModalities(t *testing.T) {
	weights := Weights{Semantic: 1.0 / 3, Keyword: 1.0 / 3, Structural: 1.0 / 3}
	semanticHits := []Hit{{ChunkID: "x", Score: 0.9, semanticScore: 0.9}}
	keywordHits := []Hit{{ChunkID: "x", Score: 0.6, keywordScore: 0.6}}
	structuralHits := []Hit{{ChunkID: "x", Score: 1.0, structuralScore: 1.0}}

	fused := fuse(semanticHits, keywordHits, structuralHits, weights)
	if len(fused) != 1 {
		t.Fatalf("expected exactly 1 deduped hit for chunk x, got %d", len(fused))
	}
	want := (0.9 + 0.6 + 1.0) / 3
	if math.Abs(fused[0].Score-want) > 1e-9 {
		t.Errorf("got %f, want %f", fused[0].Score, want)
	}
}

func TestParseStructuralPrefixRecognizesAllPrefixes(t *testing.T) {
	cases := map[string]string{
		"func:Parse":         "structural",
		"class:Widget":       "structural",
		"method:Do":          "structural",
		"interface:Store":    "structural",
		"type:Config":        "structural",
		"import:fmt":         "structural",
		"doc:install guide":  "doc",
		"commit:abc123":      "git_commit",
		"blame:main.go:42":   "git_blame",
		"lint:unused import": "lint",
		"file:main.go":       "file_line",
		"main.go:10":         "file_line",
	}
	for q, wantKind := range cases {
		d := parseStructuralPrefix(q)
		if !d.matched {
			t.Errorf("query %q: expected a match", q)
			continue
		}
		if d.kind != wantKind {
			t.Errorf("query %q: got kind %s, want %s", q, d.kind, wantKind)
		}
	}
}

func TestParseStructuralPrefixNoMatchForPlainQuery(t *testing.T) {
	d := parseStructuralPrefix("how does caching work")
	if d.matched {
		t.Errorf("expected no structural match, got kind %s", d.kind)
	}
}

func TestSplitFileLine(t *testing.T) {
	file, line, ok := splitFileLine("pkg/main.go:42")
	if !ok || file != "pkg/main.go" || line != 42 {
		t.Errorf("got (%q, %d, %v)", file, line, ok)
	}

	_, _, ok = splitFileLine("no-colon-here")
	if ok {
		t.Error("expected no match for a string without a line number")
	}
}

func TestApplyHitFiltersKeepsOnlyMatchingLanguage(t *testing.T) {
	hits := []Hit{
		{ChunkID: "a", Language: "go"},
		{ChunkID: "b", Language: "python"},
		{ChunkID: "c", Language: ""},
	}
	filtered := applyHitFilters(hits, Filters{Language: "go"})
	if len(filtered) != 2 {
		t.Fatalf("got %d hits, want 2 (go + unlabeled)", len(filtered))
	}
}
