// Package configservice implements the Unified Config Service (spec.md
// §4.J): validated, provider-aware runtime configuration with preset
// adaptation across providers and capability-gated parameter checks,
// layered over pkg/configstore (raw KV persistence) and pkg/modelcatalog
// (model capability lookups). Grounded on the teacher's pkg/config
// package's validate-then-persist shape, generalized from its static
// agent-config schema to the dynamic, provider-aware schema this spec
// names.
package configservice

import "encoding/json"

// Config is the runtime generation/model configuration the service
// validates, persists, and adapts across providers, per spec.md §4.J.
type Config struct {
	Provider string `json:"provider"`
	ModelID  string `json:"model_id"`

	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stream      bool     `json:"stream"`

	// OpenAI/Azure-only fields.
	UseResponsesAPI bool   `json:"use_responses_api,omitempty"`
	EnableReasoning bool   `json:"enable_reasoning,omitempty"`
	ReasoningEffort string `json:"reasoning_effort,omitempty"`

	// Anthropic-only fields.
	ClaudeExtendedThinking bool   `json:"claude_extended_thinking,omitempty"`
	ClaudeThinkingMode     string `json:"claude_thinking_mode,omitempty"`

	// Azure-only connection fields (the values themselves live in
	// environment variables per spec.md §6; these record which env vars
	// to resolve).
	AzureEndpoint  string `json:"azure_endpoint,omitempty"`
	AzureAPIKeyEnv string `json:"azure_api_key_env,omitempty"`
}

// Clone returns a deep copy so callers can mutate a Config (e.g. while
// adapting a preset) without aliasing the original.
func (c Config) Clone() Config {
	cp := c
	if c.Temperature != nil {
		t := *c.Temperature
		cp.Temperature = &t
	}
	if c.TopP != nil {
		t := *c.TopP
		cp.TopP = &t
	}
	if c.MaxTokens != nil {
		t := *c.MaxTokens
		cp.MaxTokens = &t
	}
	return cp
}

// patch merges non-zero fields of p onto c and returns the result,
// implementing update(patch)'s partial-update semantics. A pointer field
// set in p overwrites c's; bool/string fields overwrite unconditionally
// since Config has no way to distinguish "explicitly false/empty" from
// "unset" without a richer patch type, matching the teacher's flat
// override-merge convention in pkg/config/overrides.go.
func (c Config) patch(p Config) Config {
	out := c.Clone()
	if p.Provider != "" {
		out.Provider = p.Provider
	}
	if p.ModelID != "" {
		out.ModelID = p.ModelID
	}
	if p.Temperature != nil {
		out.Temperature = p.Temperature
	}
	if p.TopP != nil {
		out.TopP = p.TopP
	}
	if p.MaxTokens != nil {
		out.MaxTokens = p.MaxTokens
	}
	out.Stream = p.Stream
	out.UseResponsesAPI = p.UseResponsesAPI
	out.EnableReasoning = p.EnableReasoning
	if p.ReasoningEffort != "" {
		out.ReasoningEffort = p.ReasoningEffort
	}
	out.ClaudeExtendedThinking = p.ClaudeExtendedThinking
	if p.ClaudeThinkingMode != "" {
		out.ClaudeThinkingMode = p.ClaudeThinkingMode
	}
	if p.AzureEndpoint != "" {
		out.AzureEndpoint = p.AzureEndpoint
	}
	if p.AzureAPIKeyEnv != "" {
		out.AzureAPIKeyEnv = p.AzureAPIKeyEnv
	}
	return out
}

func marshalConfig(c Config) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalConfig(s string) (Config, error) {
	var c Config
	if s == "" {
		return c, nil
	}
	err := json.Unmarshal([]byte(s), &c)
	return c, err
}
