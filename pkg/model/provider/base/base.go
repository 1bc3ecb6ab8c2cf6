// Package base holds the configuration shared by every Provider Adapter
// client (openai, anthropic, azure), mirroring the teacher's base.Config
// shape but built on this module's own ModelConfiguration (spec.md §4.B)
// instead of the teacher's versioned agent-config system, which this
// module does not carry.
package base

import "github.com/agentplane/ragcore/pkg/model/provider/options"

// ModelConfig is the subset of store.ModelConfiguration plus per-provider
// connection details a live adapter needs to make requests.
type ModelConfig struct {
	Provider string
	Model    string
	BaseURL  string // empty uses the provider's default endpoint

	// APIKeyEnv names the environment variable an Environment resolves
	// for this model's credential (e.g. "OPENAI_API_KEY"). Each adapter
	// falls back to its own conventional env var name when empty.
	APIKeyEnv string

	Temperature       *float64
	MaxTokens         *int64
	TopP              *float64
	FrequencyPenalty  *float64
	PresencePenalty   *float64
	ParallelToolCalls *bool

	// TrackUsage enables the StreamOptions.IncludeUsage-style final usage
	// chunk; nil or true means enabled (spec.md §4.H normalizes usage on
	// every adapter, so callers opt out rather than in).
	TrackUsage *bool

	// UseResponsesAPI requests OpenAI's (or Azure's preview) Responses API
	// instead of Chat Completions, per spec.md §4.H: "Select Responses API
	// when use_responses_api=true AND model is in the Responses-eligible
	// set." When false, adapters still auto-select it for models in their
	// own Responses-eligible set.
	UseResponsesAPI bool

	// ThinkingBudget, when set, requests extended thinking/reasoning
	// output (Anthropic thinking, OpenAI reasoning effort).
	ThinkingBudget *ThinkingBudget

	// ProviderOpts carries provider-specific knobs that don't warrant a
	// first-class field (e.g. Anthropic's interleaved_thinking toggle,
	// Azure's api_version, a custom rerank_prompt override).
	ProviderOpts map[string]any
}

// ThinkingBudget configures a reasoning-capable model's internal
// deliberation budget, separate from MaxTokens (the output budget).
type ThinkingBudget struct {
	Tokens int    // Anthropic extended-thinking token budget
	Effort string // OpenAI/Azure reasoning effort: minimal|low|medium|high
}

// Config is embedded in each provider-specific Client to avoid
// duplicating the connection/credential plumbing every adapter needs.
type Config struct {
	ModelConfig  ModelConfig
	ModelOptions options.ModelOptions
	Env          Environment
}

// Environment resolves a named secret; satisfied by
// provider.OSEnvironment or a host-supplied equivalent.
type Environment interface {
	Get(key string) (string, error)
}

// ID returns the provider and model ID in the format "provider/model".
func (c *Config) ID() string {
	return c.ModelConfig.Provider + "/" + c.ModelConfig.Model
}

func (c *Config) BaseConfig() Config {
	return *c
}

// EmbeddingResult contains the embedding and usage information.
type EmbeddingResult struct {
	Embedding   []float64
	InputTokens int64
	TotalTokens int64
	Cost        float64
}

// BatchEmbeddingResult contains multiple embeddings and usage information.
type BatchEmbeddingResult struct {
	Embeddings  [][]float64
	InputTokens int64
	TotalTokens int64
	Cost        float64
}
