// Package openai implements the Provider Adapter (spec.md §4.H) for
// OpenAI's Chat Completions and Responses APIs.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/agentplane/ragcore/pkg/chat"
	"github.com/agentplane/ragcore/pkg/httpclient"
	"github.com/agentplane/ragcore/pkg/model/provider/base"
	"github.com/agentplane/ragcore/pkg/model/provider/options"
	"github.com/agentplane/ragcore/pkg/tools"
)

// defaultAPIKeyEnv is the environment variable checked when ModelConfig
// doesn't name one explicitly.
const defaultAPIKeyEnv = "OPENAI_API_KEY"

// Client represents an OpenAI client wrapper. It implements the
// provider.Provider interface.
type Client struct {
	base.Config
	clientFn func(context.Context) (*openai.Client, error)
}

// NewClient creates a new OpenAI client from the provided configuration.
func NewClient(cfg *base.ModelConfig, env base.Environment, logger *slog.Logger, opts ...options.Opt) (*Client, error) {
	return NewClientWithRequestOptions(cfg, env, logger, nil, opts...)
}

// NewClientWithRequestOptions builds an OpenAI-wire-compatible client, with
// extraOpts appended after authentication and base URL are resolved. The
// azure package reuses this to point the same openai-go SDK at Azure's
// endpoint shape (a distinct base URL, an api-version query parameter, and
// an api-key header instead of a bearer token) since Azure Chat Completions
// and the Azure Responses API preview are wire-identical to OpenAI's.
func NewClientWithRequestOptions(cfg *base.ModelConfig, env base.Environment, logger *slog.Logger, extraOpts []option.RequestOption, opts ...options.Opt) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("model configuration is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	globalOptions := options.New(opts...)

	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultAPIKeyEnv
	}

	var clientOptions []option.RequestOption
	if authToken, err := env.Get(keyEnv); err == nil && authToken != "" {
		clientOptions = append(clientOptions, option.WithAPIKey(authToken))
	} else if cfg.BaseURL != "" || len(extraOpts) > 0 {
		// Custom OpenAI-compatible endpoint with no configured credential:
		// send requests unauthenticated rather than fail client construction.
		logger.Debug("no API key configured, sending requests without authentication", "provider", cfg.Provider, "base_url", cfg.BaseURL)
		clientOptions = append(clientOptions, option.WithAPIKey(""))
	} else {
		return nil, fmt.Errorf("%s environment variable is required", keyEnv)
	}

	if cfg.BaseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(cfg.BaseURL))
	}

	clientOptions = append(clientOptions, option.WithHTTPClient(httpclient.NewHTTPClient()))
	clientOptions = append(clientOptions, extraOpts...)

	client := openai.NewClient(clientOptions...)
	clientFn := func(context.Context) (*openai.Client, error) {
		return &client, nil
	}

	logger.Debug("openai client created", "provider", cfg.Provider, "model", cfg.Model)

	return &Client{
		Config: base.Config{
			ModelConfig:  *cfg,
			ModelOptions: globalOptions,
			Env:          env,
		},
		clientFn: clientFn,
	}, nil
}

// CreateChatCompletionStream creates a streaming chat completion request.
// Per spec.md §4.H, the Responses API is selected when UseResponsesAPI is
// set, or the model falls in the Responses-eligible set by name.
func (c *Client) CreateChatCompletionStream(
	ctx context.Context,
	messages []chat.Message,
	requestTools []tools.Tool,
) (chat.MessageStream, error) {
	slog.Debug("creating openai chat completion stream",
		"model", c.ModelConfig.Model,
		"message_count", len(messages),
		"tool_count", len(requestTools))

	if c.ModelConfig.UseResponsesAPI || isResponsesModel(c.ModelConfig.Model) {
		return c.CreateResponseStream(ctx, messages, requestTools)
	}

	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	trackUsage := c.ModelConfig.TrackUsage == nil || *c.ModelConfig.TrackUsage

	params := openai.ChatCompletionNewParams{
		Model:    c.ModelConfig.Model,
		Messages: convertMessages(messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(trackUsage),
		},
	}

	if c.ModelConfig.Temperature != nil {
		params.Temperature = openai.Float(*c.ModelConfig.Temperature)
	}
	if c.ModelConfig.TopP != nil {
		params.TopP = openai.Float(*c.ModelConfig.TopP)
	}
	if c.ModelConfig.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*c.ModelConfig.FrequencyPenalty)
	}
	if c.ModelConfig.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*c.ModelConfig.PresencePenalty)
	}

	if maxTokens := c.ModelConfig.MaxTokens; maxTokens != nil && *maxTokens > 0 {
		if !isResponsesModel(c.ModelConfig.Model) {
			params.MaxTokens = openai.Int(*maxTokens)
		} else {
			params.MaxCompletionTokens = openai.Int(*maxTokens)
		}
	}

	if len(requestTools) > 0 {
		toolsParam := make([]openai.ChatCompletionToolUnionParam, len(requestTools))
		for i, tool := range requestTools {
			parameters, err := ConvertParametersToSchema(tool.Parameters)
			if err != nil {
				return nil, err
			}

			toolsParam[i] = openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  parameters,
			})
		}
		params.Tools = toolsParam

		if c.ModelConfig.ParallelToolCalls != nil {
			params.ParallelToolCalls = openai.Bool(*c.ModelConfig.ParallelToolCalls)
		}
	}

	if c.ModelConfig.ThinkingBudget != nil {
		effort, err := getOpenAIReasoningEffort(&c.ModelConfig)
		if err != nil {
			return nil, err
		}
		if effort != "" {
			params.ReasoningEffort = shared.ReasoningEffort(effort)
		}
	}

	if structuredOutput := c.ModelOptions.StructuredOutput(); structuredOutput != nil {
		params.ResponseFormat.OfJSONSchema = &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        structuredOutput.Name,
				Description: openai.String(structuredOutput.Description),
				Schema:      jsonSchema(structuredOutput.Schema),
				Strict:      openai.Bool(structuredOutput.Strict),
			},
		}
	}

	client, err := c.clientFn(ctx)
	if err != nil {
		return nil, err
	}

	stream := client.Chat.Completions.NewStreaming(ctx, params)
	return newStreamAdapter(stream, trackUsage), nil
}

// CreateResponseStream creates a streaming Responses API request.
func (c *Client) CreateResponseStream(
	ctx context.Context,
	messages []chat.Message,
	requestTools []tools.Tool,
) (chat.MessageStream, error) {
	slog.Debug("creating openai responses stream", "model", c.ModelConfig.Model)

	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	client, err := c.clientFn(ctx)
	if err != nil {
		return nil, err
	}

	input := convertMessagesToResponseInput(messages)

	params := responses.ResponseNewParams{
		Model: c.ModelConfig.Model,
	}
	params.Input.OfInputItemList = input

	if c.ModelConfig.Temperature != nil {
		params.Temperature = param.NewOpt(*c.ModelConfig.Temperature)
	}
	if c.ModelConfig.TopP != nil {
		params.TopP = param.NewOpt(*c.ModelConfig.TopP)
	}

	if maxTokens := c.ModelConfig.MaxTokens; maxTokens != nil && *maxTokens > 0 {
		params.MaxOutputTokens = param.NewOpt(*maxTokens)
	}

	if len(requestTools) > 0 {
		toolsParam := make([]responses.ToolUnionParam, len(requestTools))
		for i, tool := range requestTools {
			parameters, err := ConvertParametersToSchema(tool.Parameters)
			if err != nil {
				return nil, err
			}

			toolsParam[i] = responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:        tool.Name,
					Description: param.NewOpt(tool.Description),
					Parameters:  parameters,
					Strict:      param.NewOpt(true),
				},
			}
		}
		params.Tools = toolsParam

		if c.ModelConfig.ParallelToolCalls != nil {
			params.ParallelToolCalls = param.NewOpt(*c.ModelConfig.ParallelToolCalls)
		}
	}

	thinkingEnabled := c.ModelOptions.Thinking() == nil || *c.ModelOptions.Thinking()
	if isOpenAIReasoningModel(c.ModelConfig.Model) && thinkingEnabled {
		params.Reasoning = shared.ReasoningParam{
			Summary: shared.ReasoningSummaryDetailed,
		}
		if c.ModelConfig.ThinkingBudget != nil {
			effort, err := getOpenAIReasoningEffort(&c.ModelConfig)
			if err != nil {
				return nil, err
			}
			if effort != "" {
				params.Reasoning.Effort = shared.ReasoningEffort(effort)
			}
		}
	}

	if structuredOutput := c.ModelOptions.StructuredOutput(); structuredOutput != nil {
		params.Text.Format.OfJSONSchema = &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        structuredOutput.Name,
			Description: param.NewOpt(structuredOutput.Description),
			Schema:      structuredOutput.Schema,
			Strict:      param.NewOpt(structuredOutput.Strict),
		}
	}

	stream := client.Responses.NewStreaming(ctx, params)
	return newResponseStreamAdapter(stream, c.ModelConfig.TrackUsage == nil || *c.ModelConfig.TrackUsage), nil
}

func convertMessagesToResponseInput(messages []chat.Message) []responses.ResponseInputItemUnionParam {
	var input []responses.ResponseInputItemUnionParam
	for _, msg := range messages {
		if msg.Role == chat.MessageRoleAssistant && len(msg.ToolCalls) == 0 && len(msg.MultiContent) == 0 && strings.TrimSpace(msg.Content) == "" {
			continue
		}

		var item responses.ResponseInputItemUnionParam

		switch msg.Role {
		case chat.MessageRoleUser:
			if len(msg.MultiContent) == 0 {
				item.OfMessage = &responses.EasyInputMessageParam{
					Role:    responses.EasyInputMessageRoleUser,
					Content: responses.EasyInputMessageContentUnionParam{OfString: param.NewOpt(msg.Content)},
				}
			} else {
				contentParts := make([]responses.ResponseInputContentUnionParam, 0, len(msg.MultiContent))
				for _, part := range msg.MultiContent {
					switch part.Type {
					case chat.MessagePartTypeText:
						contentParts = append(contentParts, responses.ResponseInputContentUnionParam{
							OfInputText: &responses.ResponseInputTextParam{Text: part.Text},
						})
					case chat.MessagePartTypeImageURL:
						if part.ImageURL != nil {
							detail := responses.ResponseInputImageContentDetailAuto
							switch part.ImageURL.Detail {
							case chat.ImageURLDetailHigh:
								detail = responses.ResponseInputImageContentDetailHigh
							case chat.ImageURLDetailLow:
								detail = responses.ResponseInputImageContentDetailLow
							}
							contentParts = append(contentParts, responses.ResponseInputContentUnionParam{
								OfInputImage: &responses.ResponseInputImageParam{
									ImageURL: param.NewOpt(part.ImageURL.URL),
									Detail:   responses.ResponseInputImageDetail(detail),
								},
							})
						}
					}
				}
				item.OfInputMessage = &responses.ResponseInputItemMessageParam{Role: "user", Content: contentParts}
			}

		case chat.MessageRoleAssistant:
			if len(msg.ToolCalls) == 0 {
				item.OfMessage = &responses.EasyInputMessageParam{
					Role:    responses.EasyInputMessageRoleAssistant,
					Content: responses.EasyInputMessageContentUnionParam{OfString: param.NewOpt(msg.Content)},
				}
			} else {
				for _, toolCall := range msg.ToolCalls {
					if toolCall.Type == "function" {
						input = append(input, responses.ResponseInputItemUnionParam{
							OfFunctionCall: &responses.ResponseFunctionToolCallParam{
								CallID:    toolCall.ID,
								Name:      toolCall.Function.Name,
								Arguments: toolCall.Function.Arguments,
							},
						})
					}
				}
				continue
			}

		case chat.MessageRoleSystem:
			if len(msg.MultiContent) == 0 {
				item.OfInputMessage = &responses.ResponseInputItemMessageParam{
					Role: "system",
					Content: []responses.ResponseInputContentUnionParam{
						{OfInputText: &responses.ResponseInputTextParam{Text: msg.Content}},
					},
				}
			} else {
				contentParts := make([]responses.ResponseInputContentUnionParam, 0, len(msg.MultiContent))
				for _, part := range msg.MultiContent {
					if part.Type == chat.MessagePartTypeText {
						contentParts = append(contentParts, responses.ResponseInputContentUnionParam{
							OfInputText: &responses.ResponseInputTextParam{Text: part.Text},
						})
					}
				}
				item.OfInputMessage = &responses.ResponseInputItemMessageParam{Role: "system", Content: contentParts}
			}

		case chat.MessageRoleTool:
			item.OfFunctionCallOutput = &responses.ResponseInputItemFunctionCallOutputParam{
				CallID: msg.ToolCallID,
				Output: responses.ResponseInputItemFunctionCallOutputOutputUnionParam{OfString: param.NewOpt(msg.Content)},
			}
		}

		if item.OfMessage != nil || item.OfInputMessage != nil || item.OfFunctionCall != nil || item.OfFunctionCallOutput != nil {
			input = append(input, item)
		}
	}
	return input
}

// CreateEmbedding generates an embedding vector for the given text.
func (c *Client) CreateEmbedding(ctx context.Context, text string) (*base.EmbeddingResult, error) {
	batchResult, err := c.CreateBatchEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if len(batchResult.Embeddings) == 0 {
		return nil, errors.New("no embedding returned from openai")
	}

	return &base.EmbeddingResult{
		Embedding:   batchResult.Embeddings[0],
		InputTokens: batchResult.InputTokens,
		TotalTokens: batchResult.TotalTokens,
		Cost:        batchResult.Cost,
	}, nil
}

// CreateBatchEmbedding generates embedding vectors for multiple texts.
// OpenAI supports up to 2048 inputs per request.
func (c *Client) CreateBatchEmbedding(ctx context.Context, texts []string) (*base.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return &base.BatchEmbeddingResult{Embeddings: [][]float64{}}, nil
	}

	const maxBatchSize = 2048
	if len(texts) > maxBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds OpenAI limit of %d", len(texts), maxBatchSize)
	}

	client, err := c.clientFn(ctx)
	if err != nil {
		return nil, err
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: c.ModelConfig.Model,
	}

	response, err := client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch embeddings: %w", err)
	}

	if len(response.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Data))
	}

	embeddings := make([][]float64, len(response.Data))
	for i, data := range response.Data {
		embedding := make([]float64, len(data.Embedding))
		copy(embedding, data.Embedding)
		embeddings[i] = embedding
	}

	return &base.BatchEmbeddingResult{
		Embeddings:  embeddings,
		InputTokens: response.Usage.PromptTokens,
		TotalTokens: response.Usage.TotalTokens,
	}, nil
}

// isResponsesModel returns true for OpenAI models that should use the
// Responses API by default: newer models (gpt-4.1+, o-series, gpt-5) and
// the -codex variants.
func isResponsesModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "gpt-4.1") ||
		strings.HasPrefix(m, "o1") ||
		strings.HasPrefix(m, "o3") ||
		strings.HasPrefix(m, "o4") ||
		strings.HasPrefix(m, "gpt-5") ||
		strings.HasPrefix(m, "codex") ||
		strings.Contains(m, "-codex")
}

func isOpenAIReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "o1") ||
		strings.HasPrefix(m, "o3") ||
		strings.HasPrefix(m, "o4") ||
		strings.HasPrefix(m, "gpt-5")
}

// getOpenAIReasoningEffort resolves the reasoning effort value from the
// model configuration's ThinkingBudget.
func getOpenAIReasoningEffort(cfg *base.ModelConfig) (effort string, err error) {
	if cfg == nil || cfg.ThinkingBudget == nil {
		return "", nil
	}

	if !isOpenAIReasoningModel(cfg.Model) {
		slog.Warn("reasoning effort is not supported for this model, ignoring thinking_budget", "model", cfg.Model)
		return "", nil
	}

	effort = strings.TrimSpace(strings.ToLower(cfg.ThinkingBudget.Effort))
	if effort == "minimal" || effort == "low" || effort == "medium" || effort == "high" {
		return effort, nil
	}

	return "", fmt.Errorf("openai requests only support 'minimal', 'low', 'medium', 'high' as thinking_budget effort, got %q", effort)
}

// jsonSchema is a helper type that implements json.Marshaler for
// map[string]any so it can be passed where the SDK expects json.Marshaler.
type jsonSchema map[string]any

func (j jsonSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(j))
}
