package retriever

import (
	"regexp"
	"strings"
)

// QueryType is the detected intent of a free-text query, each mapped to a
// fixed fusion weight triple in spec.md §4.E.
type QueryType string

const (
	QueryErrorDebug     QueryType = "error_debug"
	QueryAPIUsage       QueryType = "api_usage"
	QueryImplementation QueryType = "implementation"
	QueryConceptual     QueryType = "conceptual"
	QuerySpecificCode   QueryType = "specific_code"
	QueryPerformance    QueryType = "performance"
	QueryTesting        QueryType = "testing"
)

// Weights is a (semantic, keyword, structural) fusion weight triple that
// sums to 1.0.
type Weights struct {
	Semantic   float64
	Keyword    float64
	Structural float64
}

// fusionWeights is the exact table from spec.md §4.E.
var fusionWeights = map[QueryType]Weights{
	QueryErrorDebug:     {Semantic: 0.3, Keyword: 0.6, Structural: 0.1},
	QueryAPIUsage:       {Semantic: 0.6, Keyword: 0.2, Structural: 0.2},
	QueryImplementation: {Semantic: 0.7, Keyword: 0.2, Structural: 0.1},
	QueryConceptual:     {Semantic: 0.8, Keyword: 0.1, Structural: 0.1},
	QuerySpecificCode:   {Semantic: 0.2, Keyword: 0.3, Structural: 0.5},
	QueryPerformance:    {Semantic: 0.4, Keyword: 0.4, Structural: 0.2},
	QueryTesting:        {Semantic: 0.4, Keyword: 0.5, Structural: 0.1},
}

// WeightsFor returns the fusion weight triple for a query type.
func WeightsFor(qt QueryType) Weights {
	return fusionWeights[qt]
}

var (
	errorWords          = []string{"error", "exception", "traceback", "panic", "fail", "bug", "crash", "stack trace"}
	apiWords            = []string{"api", "endpoint", "usage", "call", "parameter", "argument", "how to use", "how do i use"}
	implementationWords = []string{"implement", "implementation", "write", "build", "create", "add"}
	performanceWords    = []string{"slow", "performance", "latency", "optimize", "memory", "cpu", "benchmark"}
	testingWords        = []string{"test", "tests", "testing", "unit test", "assert", "mock"}

	codeSyntaxPattern = regexp.MustCompile(`[(.]|::|\bdef\s`)
	howPattern        = regexp.MustCompile(`(?i)^\s*how\b`)

	// scoreOrder fixes the tie-break precedence for DetectQueryType: earlier
	// entries win ties over later ones, so classification never depends on
	// Go's randomized map iteration order.
	scoreOrder = []QueryType{
		QueryErrorDebug, QuerySpecificCode, QueryAPIUsage,
		QueryImplementation, QueryPerformance, QueryTesting,
	}
)

// DetectQueryType classifies a free-text query using the keyword/regex
// heuristics from spec.md §4.E, including the specific_code tie-break
// boost and the "how" → conceptual default rule.
func DetectQueryType(query string) QueryType {
	lower := strings.ToLower(query)

	scores := map[QueryType]int{
		QueryErrorDebug:     countMatches(lower, errorWords),
		QueryAPIUsage:       countMatches(lower, apiWords),
		QueryImplementation: countMatches(lower, implementationWords),
		QueryPerformance:    countMatches(lower, performanceWords),
		QueryTesting:        countMatches(lower, testingWords),
		QuerySpecificCode:   0,
	}

	if codeSyntaxPattern.MatchString(query) {
		scores[QuerySpecificCode] += 2
	}

	hasImplementationWords := scores[QueryImplementation] > 0
	if howPattern.MatchString(query) && !hasImplementationWords {
		return QueryConceptual
	}

	best := QueryConceptual
	bestScore := 0
	for _, qt := range scoreOrder {
		if scores[qt] > bestScore {
			best = qt
			bestScore = scores[qt]
		}
	}
	if bestScore == 0 {
		return QueryConceptual
	}
	return best
}

func countMatches(lower string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}
