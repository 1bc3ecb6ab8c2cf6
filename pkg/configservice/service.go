package configservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agentplane/ragcore/pkg/chat"
	"github.com/agentplane/ragcore/pkg/configstore"
	"github.com/agentplane/ragcore/pkg/model/provider"
	"github.com/agentplane/ragcore/pkg/model/provider/base"
	"github.com/agentplane/ragcore/pkg/modelcatalog"
)

// activeConfigKey is the Config Store key the Unified Config Service
// persists the active Config under, JSON-encoded.
const activeConfigKey = "active_model_config"

// probePrompt is the fixed probe issued by test(dry_run=false), per
// spec.md §4.J.
const probePrompt = "Say 'test successful' and nothing else."

// Service implements the Unified Config Service (spec.md §4.J): get_current,
// update, validate, apply_preset, test.
type Service struct {
	cfgStore *configstore.Store
	catalog  *modelcatalog.Catalog
	env      EnvChecker
	presets  map[string]Preset

	newProvider func(cfg *base.ModelConfig, env base.Environment, logger *slog.Logger) (provider.Provider, error)
}

// New builds a Service. env may be nil, defaulting to a checker over the
// process environment.
func New(cfgStore *configstore.Store, catalog *modelcatalog.Catalog, env EnvChecker) *Service {
	if env == nil {
		env = OSEnvChecker{Env: provider.OSEnvironment{}}
	}
	return &Service{
		cfgStore: cfgStore,
		catalog:  catalog,
		env:      env,
		presets:  DefaultPresets(),
		newProvider: func(cfg *base.ModelConfig, env base.Environment, logger *slog.Logger) (provider.Provider, error) {
			return provider.New(cfg, env, logger)
		},
	}
}

// GetCurrent implements get_current(): the active config, or the zero
// Config if none has ever been set.
func (s *Service) GetCurrent(ctx context.Context) (Config, error) {
	all, err := s.cfgStore.GetAll(ctx)
	if err != nil {
		return Config{}, fmt.Errorf("configservice: load current config: %w", err)
	}
	row, ok := all[activeConfigKey]
	if !ok {
		return Config{}, nil
	}
	return unmarshalConfig(row.Value)
}

// Update implements update(patch, actor): merges patch onto the current
// config, validates the result, and persists it only if valid.
func (s *Service) Update(ctx context.Context, patch Config, actor string) (Config, error) {
	current, err := s.GetCurrent(ctx)
	if err != nil {
		return Config{}, err
	}
	merged := current.patch(patch)

	coerced, ok, issues := s.Validate(ctx, merged)
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrValidation, strings.Join(issues, "; "))
	}

	if err := s.persist(ctx, coerced, actor); err != nil {
		return Config{}, err
	}
	return coerced, nil
}

func (s *Service) persist(ctx context.Context, cfg Config, actor string) error {
	value, err := marshalConfig(cfg)
	if err != nil {
		return fmt.Errorf("configservice: encode config: %w", err)
	}
	if err := s.cfgStore.Set(ctx, activeConfigKey, value, "json", actor); err != nil {
		return fmt.Errorf("configservice: persist config: %w", err)
	}
	return nil
}

// TestResult is the outcome of test(config, dry_run).
type TestResult struct {
	Success        bool   `json:"success"`
	ResponseTimeMs int64  `json:"response_time_ms,omitempty"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	Error          string `json:"error,omitempty"`
}

// Test implements test(config, dry_run), per spec.md §4.J. dry_run=true
// validates only, with no API call. dry_run=false builds an ephemeral
// adapter from cfg, issues the fixed probe, and reports timing; since
// each call constructs its own Provider instance rather than mutating a
// shared one, there is no prior snapshot to restore afterward.
func (s *Service) Test(ctx context.Context, cfg Config, dryRun bool) (TestResult, error) {
	res := TestResult{Provider: cfg.Provider, Model: cfg.ModelID}

	_, ok, issues := s.Validate(ctx, cfg)
	if !ok {
		res.Success = false
		res.Error = strings.Join(issues, "; ")
		return res, nil
	}
	if dryRun {
		res.Success = true
		return res, nil
	}

	p, err := s.newProvider(toModelConfig(cfg), provider.OSEnvironment{}, slog.Default())
	if err != nil {
		res.Success = false
		res.Error = err.Error()
		return res, nil
	}

	start := time.Now()
	stream, err := p.CreateChatCompletionStream(ctx, []chat.Message{{Role: chat.MessageRoleUser, Content: probePrompt}}, nil)
	if err != nil {
		res.Success = false
		res.Error = err.Error()
		return res, nil
	}
	defer stream.Close()

	for {
		_, err := stream.Recv()
		if err != nil {
			break
		}
	}
	res.ResponseTimeMs = time.Since(start).Milliseconds()
	res.Success = true
	return res, nil
}

// toModelConfig adapts a configservice.Config to the base.ModelConfig a
// Provider Adapter client constructs from.
func toModelConfig(cfg Config) *base.ModelConfig {
	mc := &base.ModelConfig{
		Provider:        cfg.Provider,
		Model:           cfg.ModelID,
		BaseURL:         cfg.AzureEndpoint,
		APIKeyEnv:       cfg.AzureAPIKeyEnv,
		Temperature:     cfg.Temperature,
		TopP:            cfg.TopP,
		UseResponsesAPI: cfg.UseResponsesAPI,
	}
	if cfg.MaxTokens != nil {
		mt := int64(*cfg.MaxTokens)
		mc.MaxTokens = &mt
	}
	if cfg.EnableReasoning || cfg.ClaudeExtendedThinking {
		mc.ThinkingBudget = &base.ThinkingBudget{Effort: cfg.ReasoningEffort}
	}
	return mc
}
