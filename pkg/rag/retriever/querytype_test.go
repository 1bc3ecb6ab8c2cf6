package retriever

import "testing"

func TestDetectQueryTypeErrorDebug(t *testing.T) {
	if got := DetectQueryType("I'm getting a panic with a stack trace, what's the bug?"); got != QueryErrorDebug {
		t.Errorf("got %s, want %s", got, QueryErrorDebug)
	}
}

func TestDetectQueryTypeSpecificCodeBoostsOnSyntax(t *testing.T) {
	if got := DetectQueryType("what does foo.Bar() do"); got != QuerySpecificCode {
		t.Errorf("got %s, want %s", got, QuerySpecificCode)
	}
}

func TestDetectQueryTypeHowWithoutImplementationWordsIsConceptual(t *testing.T) {
	if got := DetectQueryType("how does garbage collection work"); got != QueryConceptual {
		t.Errorf("got %s, want %s", got, QueryConceptual)
	}
}

func TestDetectQueryTypeHowWithImplementationWordsIsNotForcedConceptual(t *testing.T) {
	if got := DetectQueryType("how do I implement a retry loop"); got != QueryImplementation {
		t.Errorf("got %s, want %s", got, QueryImplementation)
	}
}

func TestDetectQueryTypeNoSignalFallsBackToConceptual(t *testing.T) {
	if got := DetectQueryType("tell me something interesting"); got != QueryConceptual {
		t.Errorf("got %s, want %s", got, QueryConceptual)
	}
}

func TestDetectQueryTypeIsDeterministicAcrossCalls(t *testing.T) {
	query := "slow performance and a crash under load"
	first := DetectQueryType(query)
	for i := 0; i < 20; i++ {
		if got := DetectQueryType(query); got != first {
			t.Fatalf("non-deterministic classification: run %d got %s, first was %s", i, got, first)
		}
	}
}

func TestWeightsForSumToOne(t *testing.T) {
	for qt, w := range fusionWeights {
		sum := w.Semantic + w.Keyword + w.Structural
		if sum < 0.999 || sum > 1.001 {
			t.Errorf("weights for %s sum to %f, want ~1.0", qt, sum)
		}
	}
}
