// Package azure implements the Provider Adapter (spec.md §4.H) for Azure
// OpenAI. Azure Chat Completions is wire-identical to OpenAI's Chat
// Completions API, and the Azure Responses API preview shares OpenAI's
// Responses tool/streaming shape, so this adapter is a thin wrapper around
// the openai package's client: same openai-go SDK, an Azure resource base
// URL, an api-version query parameter, and an api-key header in place of a
// bearer token.
package azure

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3/option"

	"github.com/agentplane/ragcore/pkg/model/provider/base"
	"github.com/agentplane/ragcore/pkg/model/provider/openai"
	"github.com/agentplane/ragcore/pkg/model/provider/options"
)

const (
	defaultAPIKeyEnv   = "AZURE_OPENAI_API_KEY"
	defaultAPIVersion  = "2024-10-21"
	apiVersionOptKey   = "api_version"
	chatCompletionsFmt = "%s/openai/deployments/%s"
)

// NewClient builds a Provider Adapter for an Azure OpenAI deployment.
// cfg.BaseURL must be the Azure resource endpoint (e.g.
// "https://my-resource.openai.azure.com"); cfg.Model is the deployment
// name. cfg.ProviderOpts["api_version"] overrides the default api-version
// query parameter.
func NewClient(cfg *base.ModelConfig, env base.Environment, logger *slog.Logger, opts ...options.Opt) (*openai.Client, error) {
	if cfg == nil {
		return nil, errors.New("model configuration is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("azure provider requires base_url to be set to the Azure resource endpoint")
	}
	if logger == nil {
		logger = slog.Default()
	}

	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultAPIKeyEnv
	}
	authToken, err := env.Get(keyEnv)
	if err != nil || authToken == "" {
		return nil, fmt.Errorf("%s environment variable is required", keyEnv)
	}

	apiVersion := defaultAPIVersion
	if cfg.ProviderOpts != nil {
		if v, ok := cfg.ProviderOpts[apiVersionOptKey].(string); ok && v != "" {
			apiVersion = v
		}
	}

	deploymentCfg := *cfg
	deploymentCfg.BaseURL = fmt.Sprintf(chatCompletionsFmt, cfg.BaseURL, cfg.Model)

	extraOpts := []option.RequestOption{
		option.WithHeader("api-key", authToken),
		option.WithQueryAdd("api-version", apiVersion),
	}

	logger.Debug("azure client created", "deployment", cfg.Model, "api_version", apiVersion)

	// Auth travels via the api-key header above, not a bearer token, so the
	// underlying openai client is built against a credential-less
	// environment to keep it from also attaching an Authorization header.
	return openai.NewClientWithRequestOptions(&deploymentCfg, noAuthEnv{}, logger, extraOpts, opts...)
}

// noAuthEnv always reports no credential, so openai.NewClientWithRequestOptions
// falls back to its unauthenticated branch and leaves authentication solely
// to the api-key header azure.NewClient already attached.
type noAuthEnv struct{}

func (noAuthEnv) Get(string) (string, error) {
	return "", errors.New("azure adapter authenticates via api-key header, not a bearer token")
}
