// Package provider dispatches a resolved ModelConfiguration (spec.md §4.B)
// to the concrete Provider Adapter client for openai, anthropic, or azure
// (spec.md §4.H).
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentplane/ragcore/pkg/chat"
	"github.com/agentplane/ragcore/pkg/model/provider/anthropic"
	"github.com/agentplane/ragcore/pkg/model/provider/azure"
	"github.com/agentplane/ragcore/pkg/model/provider/base"
	"github.com/agentplane/ragcore/pkg/model/provider/openai"
	"github.com/agentplane/ragcore/pkg/model/provider/options"
	"github.com/agentplane/ragcore/pkg/tools"
)

// Provider defines the interface implemented by every concrete adapter.
type Provider interface {
	// CreateChatCompletionStream creates a streaming chat completion request.
	// It returns a stream that can be iterated over to get completion chunks.
	CreateChatCompletionStream(
		ctx context.Context,
		messages []chat.Message,
		tools []tools.Tool,
	) (chat.MessageStream, error)
}

// Embedder is implemented by adapters that can serve the Vector Backend's
// embedding calls (spec.md §4.C).
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) (*base.EmbeddingResult, error)
	CreateBatchEmbedding(ctx context.Context, texts []string) (*base.BatchEmbeddingResult, error)
}

// New constructs the Provider Adapter named by cfg.Provider.
func New(cfg *base.ModelConfig, env base.Environment, logger *slog.Logger, opts ...options.Opt) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("creating model provider", "provider", cfg.Provider, "model", cfg.Model)

	switch cfg.Provider {
	case "openai":
		return openai.NewClient(cfg, env, logger, opts...)
	case "anthropic":
		return anthropic.NewClient(cfg, env, logger, opts...)
	case "azure":
		return azure.NewClient(cfg, env, logger, opts...)
	}

	return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider)
}
