// Package embed implements the embedding half of the Vector Backend
// pipeline (spec.md §4.C): turning text into vectors via whichever
// Provider Adapter exposes embedding support, batching and parallelizing
// the calls the way the teacher's pkg/rag/embed batches chat completions.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agentplane/ragcore/pkg/model/provider"
)

// Embedder generates vector embeddings for text via a Provider Adapter's
// Embedder capability (openai and azure; anthropic has none).
type Embedder struct {
	provider       provider.Embedder
	providerID     string
	usageHandler   func(tokens int64, cost float64) // Callback to emit usage events
	batchSize      int                              // Batch size for API calls
	maxConcurrency int                              // Maximum concurrent embedding batch requests
}

// Option is a functional option for configuring the Embedder
type Option func(*Embedder)

// WithBatchSize sets the batch size for embedding API calls (default: 50)
func WithBatchSize(size int) Option {
	return func(e *Embedder) {
		e.batchSize = size
	}
}

// WithMaxConcurrency sets the maximum concurrent embedding batch requests (default: 5)
func WithMaxConcurrency(maxConcurrency int) Option {
	return func(e *Embedder) {
		e.maxConcurrency = maxConcurrency
	}
}

// New creates a new embedder using a model provider with optional configuration.
// providerID labels usage/log events (e.g. "openai/text-embedding-3-small").
func New(p provider.Embedder, providerID string, opts ...Option) *Embedder {
	e := &Embedder{
		provider:       p,
		providerID:     providerID,
		batchSize:      50,
		maxConcurrency: 5,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// SetUsageHandler sets a callback to be called after each embedding with usage info
func (e *Embedder) SetUsageHandler(handler func(tokens int64, cost float64)) {
	e.usageHandler = handler
}

// Embed generates an embedding for a single text, emitting a usage event
// immediately via the handler if one is set.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	result, err := e.provider.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if e.usageHandler != nil {
		e.usageHandler(result.TotalTokens, result.Cost)
	}

	slog.Debug("Embedding generated",
		"provider", e.providerID,
		"tokens", result.TotalTokens,
		"cost", result.Cost)

	return result.Embedding, nil
}

// EmbedBatch generates embeddings for multiple texts, splitting into
// batchSize-sized chunks run with up to maxConcurrency calls in flight.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	return e.embedBatchOptimized(ctx, texts)
}

// embedBatchOptimized processes texts in optimized batches with parallel API calls
func (e *Embedder) embedBatchOptimized(ctx context.Context, texts []string) ([][]float64, error) {
	totalTexts := len(texts)
	slog.Debug("Starting optimized batch embedding",
		"provider", e.providerID,
		"total_texts", totalTexts,
		"batch_size", e.batchSize,
		"max_concurrency", e.maxConcurrency)

	// Pre-allocate results
	embeddings := make([][]float64, totalTexts)
	var mu sync.Mutex

	// Create errgroup with concurrency limit
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)

	// Process batches in parallel
	for start := 0; start < totalTexts; start += e.batchSize {
		end := min(start+e.batchSize, totalTexts)

		g.Go(func() error {
			batchTexts := texts[start:end]
			batchNum := start/e.batchSize + 1
			numBatches := (totalTexts + e.batchSize - 1) / e.batchSize

			slog.Debug("Processing batch",
				"batch", batchNum,
				"total_batches", numBatches,
				"batch_size", len(batchTexts),
				"start_idx", start)

			// Make batch API call
			result, err := e.provider.CreateBatchEmbedding(ctx, batchTexts)
			if err != nil {
				return fmt.Errorf("batch %d failed: %w", batchNum, err)
			}

			// Store results (mutex protects slice writes)
			mu.Lock()
			copy(embeddings[start:end], result.Embeddings)
			mu.Unlock()

			// Emit usage event (handler should be thread-safe)
			if e.usageHandler != nil {
				e.usageHandler(result.TotalTokens, result.Cost)
			}

			slog.Debug("Batch completed",
				"batch", batchNum,
				"embeddings", len(result.Embeddings),
				"tokens", result.TotalTokens,
				"cost", result.Cost)

			return nil
		})
	}

	// Wait for all batches and return first error if any
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("Batch embedding completed",
		"provider", e.providerID,
		"total_embeddings", len(embeddings),
		"batches_processed", (totalTexts+e.batchSize-1)/e.batchSize)

	return embeddings, nil
}
