package configservice

import (
	"context"
	"fmt"
)

// Validate runs the 3-stage pipeline of spec.md §4.J against cfg: (1)
// schema coercion (numeric values are clamped into range, never
// rejected), (2) provider requirements (missing/forbidden fields reject),
// (3) model-capability gate (unsupported features reject; max_tokens is
// clamped to the model's max). coerced is cfg with every stage-1/3
// coercion applied, valid for use regardless of ok. ok is false the
// moment stage 2 or 3 finds a rejection-worthy violation.
func (s *Service) Validate(ctx context.Context, cfg Config) (coerced Config, ok bool, issues []string) {
	coerced = coerceSchema(cfg)

	if iss := validateProviderRequirements(coerced, s.env); len(iss) > 0 {
		return coerced, false, iss
	}

	coerced, iss := s.applyCapabilityGate(ctx, coerced)
	if len(iss) > 0 {
		return coerced, false, iss
	}
	return coerced, true, nil
}

// coerceSchema is stage 1: clamps numeric fields into their valid ranges
// (temperature∈[0,2], top_p∈[0,1], max_tokens∈[1,128000]) rather than
// rejecting out-of-range input.
func coerceSchema(cfg Config) Config {
	out := cfg.Clone()
	if out.Temperature != nil {
		t := clamp(*out.Temperature, 0, 2)
		out.Temperature = &t
	}
	if out.TopP != nil {
		t := clamp(*out.TopP, 0, 1)
		out.TopP = &t
	}
	if out.MaxTokens != nil {
		t := clampInt(*out.MaxTokens, 1, 128000)
		out.MaxTokens = &t
	}
	return out
}

// validateProviderRequirements is stage 2: provider-specific required and
// forbidden fields.
func validateProviderRequirements(cfg Config, env EnvChecker) []string {
	var issues []string
	switch cfg.Provider {
	case "azure":
		if cfg.AzureEndpoint == "" && !env.Has("AZURE_OPENAI_ENDPOINT") {
			issues = append(issues, "azure provider requires AZURE_OPENAI_ENDPOINT to be configured")
		}
		if cfg.AzureAPIKeyEnv == "" && !env.Has("AZURE_OPENAI_API_KEY") {
			issues = append(issues, "azure provider requires AZURE_OPENAI_API_KEY to be configured")
		}
	case "anthropic":
		if cfg.EnableReasoning {
			issues = append(issues, "anthropic does not support enable_reasoning; use claude_extended_thinking instead")
		}
	}
	return issues
}

// applyCapabilityGate is stage 3: checks and coercions that require a
// model-catalog lookup.
func (s *Service) applyCapabilityGate(ctx context.Context, cfg Config) (Config, []string) {
	var issues []string
	out := cfg.Clone()

	if m, ok, err := s.catalog.Get(ctx, cfg.ModelID); err == nil && ok {
		if cfg.Stream && !m.SupportsStreaming {
			issues = append(issues, fmt.Sprintf("model %s does not support streaming", cfg.ModelID))
		}
		if out.MaxTokens != nil && m.MaxOutputTokens > 0 && *out.MaxTokens > m.MaxOutputTokens {
			clamped := m.MaxOutputTokens
			out.MaxTokens = &clamped
		}
	}

	if s.catalog.SupportsReasoning(ctx, cfg.ModelID) && cfg.Temperature != nil && *cfg.Temperature != 1.0 {
		issues = append(issues, fmt.Sprintf("Reasoning model %s does not support temperature control", cfg.ModelID))
	}

	return out, issues
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EnvChecker reports whether an environment variable is set, without
// exposing its value to the validation layer.
type EnvChecker interface {
	Has(key string) bool
}

// OSEnvChecker satisfies EnvChecker via a base.Environment-shaped getter,
// treating any error (unset or lookup failure) as "not configured".
type OSEnvChecker struct {
	Env interface {
		Get(key string) (string, error)
	}
}

func (c OSEnvChecker) Has(key string) bool {
	if c.Env == nil {
		return false
	}
	v, err := c.Env.Get(key)
	return err == nil && v != ""
}
