package confidence

import (
	"context"
	"log/slog"

	"github.com/agentplane/ragcore/pkg/store"
)

// StoreFeedback implements FeedbackLookup over pkg/store, aggregating the
// Helpful rating of every message that cited a chunk (via
// store.Message.ReferencedChunks) into a single helpfulness rate.
type StoreFeedback struct {
	db *store.Store
}

// NewStoreFeedback wraps a Store as a FeedbackLookup.
func NewStoreFeedback(db *store.Store) *StoreFeedback {
	return &StoreFeedback{db: db}
}

// HelpfulRate reports the fraction of rated messages that cited chunkID and
// were marked helpful. ok is false when no message citing the chunk has
// received feedback yet.
func (f *StoreFeedback) HelpfulRate(ctx context.Context, chunkID string) (float64, bool) {
	rate, n, err := f.db.ChunkHelpfulRate(ctx, chunkID)
	if err != nil {
		slog.Warn("confidence: feedback lookup failed", "chunk_id", chunkID, "error", err)
		return 0, false
	}
	if n == 0 {
		return 0, false
	}
	return rate, true
}
