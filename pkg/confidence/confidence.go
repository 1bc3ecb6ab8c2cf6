// Package confidence implements Confidence & Quality (spec.md §4.K):
// scoring a RAG-augmented answer, deriving its coarse status label, and
// recording user feedback that feeds back into future scoring. Grounded
// on the teacher's pkg/rag/rerank/rerank.go scoring pattern (an LLM-or-
// heuristic judge emitting a float per item) and pkg/rag/types.Event's
// usage/error event shape, generalized into the weighted aggregate named
// in spec.md's GLOSSARY: similarity, source-type quality, recency, and
// historical feedback.
package confidence

import (
	"context"
	"math"
	"time"

	"github.com/agentplane/ragcore/pkg/rag/retriever"
	"github.com/agentplane/ragcore/pkg/store"
)

// Weights controls the relative contribution of each confidence signal.
// The zero value is invalid; use DefaultWeights.
type Weights struct {
	Similarity float64
	SourceType float64
	Recency    float64
	Feedback   float64
}

// DefaultWeights mirrors the teacher's reranker's implicit preference for
// similarity as the dominant signal, with the other three as modifiers.
var DefaultWeights = Weights{
	Similarity: 0.5,
	SourceType: 0.2,
	Recency:    0.15,
	Feedback:   0.15,
}

// sourceTypeQuality ranks how trustworthy a hit's originating modality is,
// independent of its similarity score: structural/commit hits are exact
// matches against ground truth, semantic/keyword hits are approximate.
var sourceTypeQuality = map[retriever.SearchType]float64{
	retriever.SearchTypeStructural: 1.0,
	retriever.SearchTypeHybrid:     0.85,
	retriever.SearchTypeKeyword:    0.7,
	retriever.SearchTypeSemantic:   0.65,
}

// recencyHalfLife is how long it takes a document's recency contribution
// to decay to half its initial value.
const recencyHalfLife = 90 * 24 * time.Hour

// FeedbackLookup returns the historical helpfulness rate (0..1) for a
// document or chunk, or ok=false if no feedback history exists yet.
// Satisfied by a thin query over store.Feedback joined through messages
// that referenced the chunk.
type FeedbackLookup interface {
	HelpfulRate(ctx context.Context, chunkID string) (rate float64, ok bool)
}

// NoFeedback is a FeedbackLookup that always reports no history, for
// callers that haven't wired feedback aggregation yet.
type NoFeedback struct{}

func (NoFeedback) HelpfulRate(context.Context, string) (float64, bool) { return 0, false }

// Scorer computes Confidence & Quality assessments.
type Scorer struct {
	weights  Weights
	feedback FeedbackLookup
}

// New builds a Scorer. A zero Weights falls back to DefaultWeights; a nil
// FeedbackLookup falls back to NoFeedback{}.
func New(weights Weights, feedback FeedbackLookup) *Scorer {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	if feedback == nil {
		feedback = NoFeedback{}
	}
	return &Scorer{weights: weights, feedback: feedback}
}

// Assessment is the Confidence & Quality result attached to an assistant
// message's RAG metadata fields (store.Message.RAG*).
type Assessment struct {
	Confidence            float64
	Status                store.RAGStatus
	KnowledgeSourcesCount int
	Warnings              []string
}

// Assess scores the hits that fed an assistant turn's retrieved context.
// documentUpdatedAt, keyed by DocumentID, supplies recency for hits whose
// document age is known; hits missing an entry score neutral (0.5)
// recency rather than being penalized for an unknown age.
func (s *Scorer) Assess(ctx context.Context, hits []retriever.Hit, documentUpdatedAt map[string]time.Time, now time.Time) Assessment {
	if len(hits) == 0 {
		return Assessment{Status: store.RAGStatusStandard}
	}

	var total float64
	for _, h := range hits {
		total += s.scoreHit(ctx, h, documentUpdatedAt, now)
	}
	confidence := total / float64(len(hits))
	confidence = math.Max(0, math.Min(1, confidence))

	a := Assessment{
		Confidence:            confidence,
		KnowledgeSourcesCount: len(hits),
		Status:                deriveStatus(confidence, len(hits)),
	}
	if confidence < 0.4 {
		a.Warnings = append(a.Warnings, "low confidence: retrieved context may not answer the question accurately")
	}
	if len(hits) == 1 {
		a.Warnings = append(a.Warnings, "single source: answer is based on only one retrieved chunk")
	}
	return a
}

func (s *Scorer) scoreHit(ctx context.Context, h retriever.Hit, documentUpdatedAt map[string]time.Time, now time.Time) float64 {
	similarity := math.Max(0, math.Min(1, h.Score))

	sourceType, ok := sourceTypeQuality[h.SearchType]
	if !ok {
		sourceType = 0.5
	}

	recency := 0.5
	if updatedAt, ok := documentUpdatedAt[h.DocumentID]; ok && !updatedAt.IsZero() {
		age := now.Sub(updatedAt)
		if age < 0 {
			age = 0
		}
		recency = math.Exp(-float64(age) / float64(recencyHalfLife) * math.Ln2)
	}

	feedback := 0.5
	if rate, ok := s.feedback.HelpfulRate(ctx, h.ChunkID); ok {
		feedback = rate
	}

	return s.weights.Similarity*similarity +
		s.weights.SourceType*sourceType +
		s.weights.Recency*recency +
		s.weights.Feedback*feedback
}

// deriveStatus maps a confidence score and source count to the coarse
// label set from spec.md §3/GLOSSARY: active, degraded, poor, standard.
// (error is reserved for retrieval failures, set by the caller directly.)
func deriveStatus(confidence float64, sourceCount int) store.RAGStatus {
	switch {
	case sourceCount == 0:
		return store.RAGStatusStandard
	case confidence >= 0.7:
		return store.RAGStatusActive
	case confidence >= 0.4:
		return store.RAGStatusDegraded
	default:
		return store.RAGStatusPoor
	}
}
