package chatloop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentplane/ragcore/pkg/assembler"
	"github.com/agentplane/ragcore/pkg/configservice"
	"github.com/agentplane/ragcore/pkg/model/provider"
	"github.com/agentplane/ragcore/pkg/model/provider/base"
	"github.com/agentplane/ragcore/pkg/modelcatalog"
	"github.com/agentplane/ragcore/pkg/store"
)

// ConfigResolver implements ProjectResolver against the Unified Config
// Service and Model Catalog: every turn re-resolves the current runtime
// config rather than caching a Provider, so a live config change (spec.md
// §3) takes effect on the next turn without restarting anything.
type ConfigResolver struct {
	db      *store.Store
	cfg     *configservice.Service
	catalog *modelcatalog.Catalog
	env     base.Environment
	logger  *slog.Logger

	// SystemPrompt is used for every turn; spec.md does not give projects
	// per-project system prompts, so one process-wide prompt is used.
	SystemPrompt string
}

// NewConfigResolver builds a ConfigResolver.
func NewConfigResolver(db *store.Store, cfg *configservice.Service, catalog *modelcatalog.Catalog, env base.Environment, logger *slog.Logger) *ConfigResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigResolver{db: db, cfg: cfg, catalog: catalog, env: env, logger: logger}
}

// Resolve builds the TurnConfig for a turn: the current runtime
// configuration picks the provider and model; the Model Catalog supplies
// the model's context window for the Context Assembler's token budget;
// the project itself is the sole retrieval scope (cross-project retrieval
// is not part of spec.md §4.E's contract).
func (r *ConfigResolver) Resolve(ctx context.Context, projectID string) (TurnConfig, error) {
	cfg, err := r.cfg.GetCurrent(ctx)
	if err != nil {
		return TurnConfig{}, fmt.Errorf("resolve: get current config: %w", err)
	}

	model, ok, err := r.catalog.Get(ctx, cfg.ModelID)
	if err != nil {
		return TurnConfig{}, fmt.Errorf("resolve: model catalog: %w", err)
	}
	if !ok {
		return TurnConfig{}, fmt.Errorf("resolve: unknown model %q", cfg.ModelID)
	}

	modelCfg := &base.ModelConfig{
		Provider:          cfg.Provider,
		Model:             cfg.ModelID,
		Temperature:       cfg.Temperature,
		TopP:              cfg.TopP,
		ParallelToolCalls: boolPtr(true),
		UseResponsesAPI:   cfg.UseResponsesAPI,
	}
	if cfg.MaxTokens != nil {
		mt := int64(*cfg.MaxTokens)
		modelCfg.MaxTokens = &mt
	}
	if cfg.Provider == "azure" {
		modelCfg.BaseURL = cfg.AzureEndpoint
		modelCfg.APIKeyEnv = cfg.AzureAPIKeyEnv
	}
	if cfg.EnableReasoning {
		tb := &base.ThinkingBudget{Effort: cfg.ReasoningEffort}
		modelCfg.ThinkingBudget = tb
	}
	if cfg.ClaudeExtendedThinking {
		modelCfg.ProviderOpts = map[string]any{"claude_thinking_mode": cfg.ClaudeThinkingMode}
	}

	p, err := provider.New(modelCfg, r.env, r.logger)
	if err != nil {
		return TurnConfig{}, fmt.Errorf("resolve: build provider: %w", err)
	}

	contextWindow := model.MaxContextWindow
	if contextWindow <= 0 {
		contextWindow = 128_000
	}
	maxResponse := model.MaxOutputTokens
	if cfg.MaxTokens != nil {
		maxResponse = *cfg.MaxTokens
	}
	if maxResponse <= 0 {
		maxResponse = 4096
	}

	return TurnConfig{
		Provider:     p,
		SystemPrompt: r.SystemPrompt,
		ProjectIDs:   []string{projectID},
		Assembler: assembler.Config{
			ContextWindow:     contextWindow,
			MaxResponseTokens: maxResponse,
			ReasoningModel:    model.SupportsReasoning && cfg.EnableReasoning,
		},
		ToolTimeout: DefaultToolTimeout,
	}, nil
}

func boolPtr(b bool) *bool { return &b }
