package configservice

import (
	"context"
	"fmt"
)

// Preset is a named bundle of generation/reasoning parameters plus a
// per-provider sub-configuration, adapted on apply (spec.md §3/GLOSSARY).
type Preset struct {
	ID      string
	Configs map[string]Config // keyed by provider name
}

// DefaultPresets are the built-in preset bundles. "powerful" matches
// spec.md §8 scenario 2 exactly; the others round out the tier table
// (small/medium/large/latest) named in spec.md §4.J for a realistic
// three-tier preset catalog.
func DefaultPresets() map[string]Preset {
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }

	return map[string]Preset{
		"powerful": {
			ID: "powerful",
			Configs: map[string]Config{
				"anthropic": {
					Provider:               "anthropic",
					ModelID:                "claude-opus-4-20250514",
					ClaudeExtendedThinking: true,
					ClaudeThinkingMode:     "aggressive",
					MaxTokens:              i(32000),
				},
				"openai": {
					Provider:        "openai",
					ModelID:         "o3",
					EnableReasoning: true,
					ReasoningEffort: "high",
					MaxTokens:       i(32000),
				},
				"azure": {
					Provider:        "azure",
					ModelID:         "o3",
					EnableReasoning: true,
					ReasoningEffort: "high",
					MaxTokens:       i(32000),
				},
			},
		},
		"balanced": {
			ID: "balanced",
			Configs: map[string]Config{
				"anthropic": {Provider: "anthropic", ModelID: "claude-3-5-sonnet-20241022", Temperature: f(0.7), MaxTokens: i(8000)},
				"openai":    {Provider: "openai", ModelID: "gpt-4o", Temperature: f(0.7), MaxTokens: i(8000)},
				"azure":     {Provider: "azure", ModelID: "gpt-4o", Temperature: f(0.7), MaxTokens: i(8000)},
			},
		},
		"economical": {
			ID: "economical",
			Configs: map[string]Config{
				"anthropic": {Provider: "anthropic", ModelID: "claude-3-haiku-20240307", Temperature: f(0.7), MaxTokens: i(4000)},
				"openai":    {Provider: "openai", ModelID: "gpt-4o-mini", Temperature: f(0.7), MaxTokens: i(4000)},
				"azure":     {Provider: "azure", ModelID: "gpt-4o-mini", Temperature: f(0.7), MaxTokens: i(4000)},
			},
		},
	}
}

// ApplyPreset implements apply_preset(preset_id, target_provider): picks
// the preset's sub-config for targetProvider and runs cross-provider
// adaptation (strip provider-foreign fields, apply provider-specific
// adjustments), then persists the result as the active config. Applying
// the same preset twice yields the same effective config (idempotent),
// since adaptation is a pure function of (preset, targetProvider) with no
// dependency on the previously active config.
func (s *Service) ApplyPreset(ctx context.Context, presetID, targetProvider, actor string) (Config, error) {
	preset, ok := s.presets[presetID]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownPreset, presetID)
	}
	sub, ok := preset.Configs[targetProvider]
	if !ok {
		return Config{}, fmt.Errorf("%w: preset %q has no sub-config for provider %q", ErrUnknownPreset, presetID, targetProvider)
	}

	adapted := adaptCrossProvider(sub, targetProvider, func(modelID string) bool {
		return s.catalog.SupportsReasoning(ctx, modelID)
	})

	if err := s.persist(ctx, adapted, "preset:"+presetID+":"+actor); err != nil {
		return Config{}, err
	}
	return adapted, nil
}

// adaptCrossProvider strips fields foreign to targetProvider and applies
// provider-specific adjustments, per spec.md §4.J.
func adaptCrossProvider(cfg Config, targetProvider string, supportsReasoning func(string) bool) Config {
	out := cfg.Clone()
	out.Provider = targetProvider

	if targetProvider != "anthropic" {
		out.ClaudeExtendedThinking = false
		out.ClaudeThinkingMode = ""
	}
	if targetProvider == "anthropic" {
		out.UseResponsesAPI = false
		out.EnableReasoning = false
		out.ReasoningEffort = ""
	}

	if targetProvider == "azure" && supportsReasoning(out.ModelID) {
		one := 1.0
		out.Temperature = &one
		out.UseResponsesAPI = true
	}

	return out
}
