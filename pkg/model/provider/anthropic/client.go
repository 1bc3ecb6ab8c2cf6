// Package anthropic implements the Provider Adapter (spec.md §4.H) for
// Anthropic's Messages API, including extended thinking, prompt caching,
// and context-length-error retry.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/agentplane/ragcore/pkg/chat"
	"github.com/agentplane/ragcore/pkg/httpclient"
	"github.com/agentplane/ragcore/pkg/model/provider/base"
	"github.com/agentplane/ragcore/pkg/model/provider/options"
	"github.com/agentplane/ragcore/pkg/tools"
)

// defaultAPIKeyEnv is the environment variable checked when ModelConfig
// doesn't name one explicitly.
const defaultAPIKeyEnv = "ANTHROPIC_API_KEY"

// Client represents an Anthropic client wrapper implementing provider.Provider.
// It holds the anthropic client and model config.
type Client struct {
	base.Config
	clientFn         func(context.Context) (anthropic.Client, error)
	lastHTTPResponse *http.Response
}

func (c *Client) getResponseTrailer() http.Header {
	if c.lastHTTPResponse == nil {
		return nil
	}

	if c.lastHTTPResponse.Body != nil {
		_, _ = io.Copy(io.Discard, c.lastHTTPResponse.Body)
	}

	return c.lastHTTPResponse.Trailer
}

// adjustMaxTokensForThinking checks if max_tokens needs adjustment for thinking_budget.
// Anthropic's max_tokens represents the combined budget for thinking + output tokens.
// Returns the adjusted maxTokens value and an error if user-set max_tokens is too low.
func (c *Client) adjustMaxTokensForThinking(maxTokens int64) (int64, error) {
	if c.ModelConfig.ThinkingBudget == nil || c.ModelConfig.ThinkingBudget.Tokens <= 0 {
		return maxTokens, nil
	}

	thinkingTokens := int64(c.ModelConfig.ThinkingBudget.Tokens)
	minRequired := thinkingTokens + 1024 // configured thinking budget + minimum output buffer

	if maxTokens <= thinkingTokens {
		if c.ModelConfig.MaxTokens != nil {
			return 0, fmt.Errorf("anthropic: max_tokens (%d) must be greater than thinking_budget (%d); increase max_tokens to at least %d",
				maxTokens, thinkingTokens, minRequired)
		}
		// return the configured thinking budget + 8192 because that's the default
		// max_tokens value for anthropic models when unspecified by the user
		return thinkingTokens + 8192, nil
	}

	return maxTokens, nil
}

// NewClient creates a new Anthropic client from the provided configuration.
func NewClient(cfg *base.ModelConfig, env base.Environment, logger *slog.Logger, opts ...options.Opt) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("model configuration is required")
	}
	if cfg.Provider != "anthropic" {
		return nil, errors.New("model type must be 'anthropic'")
	}
	if env == nil {
		return nil, errors.New("environment is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	globalOptions := options.New(opts...)

	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultAPIKeyEnv
	}
	authToken, err := env.Get(keyEnv)
	if err != nil || authToken == "" {
		return nil, fmt.Errorf("%s environment variable is required", keyEnv)
	}

	anthropicClient := &Client{
		Config: base.Config{
			ModelConfig:  *cfg,
			ModelOptions: globalOptions,
			Env:          env,
		},
	}

	requestOptions := []option.RequestOption{
		option.WithAPIKey(authToken),
		option.WithResponseInto(&anthropicClient.lastHTTPResponse),
		option.WithHTTPClient(httpclient.NewHTTPClient()),
	}
	if cfg.BaseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(requestOptions...)
	anthropicClient.clientFn = func(context.Context) (anthropic.Client, error) {
		return client, nil
	}

	logger.Debug("anthropic client created", "model", cfg.Model)

	return anthropicClient, nil
}

// CreateChatCompletionStream creates a streaming chat completion request.
func (c *Client) CreateChatCompletionStream(
	ctx context.Context,
	messages []chat.Message,
	requestTools []tools.Tool,
) (chat.MessageStream, error) {
	slog.Debug("creating anthropic chat completion stream",
		"model", c.ModelConfig.Model,
		"message_count", len(messages),
		"tool_count", len(requestTools))

	// Default to 8192 if maxTokens is not set (0); a safe default that
	// works for all Anthropic models.
	maxTokens := c.ModelOptions.MaxTokens()
	if maxTokens == 0 {
		maxTokens = 8192
	}
	maxTokens, err := c.adjustMaxTokensForThinking(maxTokens)
	if err != nil {
		return nil, err
	}

	client, err := c.clientFn(ctx)
	if err != nil {
		return nil, err
	}

	allTools, err := convertTools(requestTools)
	if err != nil {
		return nil, err
	}

	converted, err := c.convertMessages(messages)
	if err != nil {
		return nil, err
	}
	// Preflight validation to ensure tool_use/tool_result sequencing is valid.
	if err := validateAnthropicSequencing(converted); err != nil {
		slog.Warn("invalid message sequencing for anthropic detected, attempting self-repair", "error", err)
		converted = repairAnthropicSequencing(converted)
		if err2 := validateAnthropicSequencing(converted); err2 != nil {
			return nil, err
		}
	}
	if len(converted) == 0 {
		return nil, errors.New("no messages to send after conversion: all messages were filtered out")
	}
	sys := extractSystemBlocks(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.ModelConfig.Model),
		MaxTokens: maxTokens,
		System:    sys,
		Messages:  converted,
		Tools:     allTools,
	}

	// Apply thinking budget first, as it affects whether we can set temperature.
	thinkingEnabled := false
	if c.ModelConfig.ThinkingBudget != nil && c.ModelConfig.ThinkingBudget.Tokens > 0 {
		thinkingTokens := int64(c.ModelConfig.ThinkingBudget.Tokens)
		switch {
		case thinkingTokens >= 1024 && thinkingTokens < maxTokens:
			params.Thinking = anthropic.ThinkingConfigParamOfEnabled(thinkingTokens)
			thinkingEnabled = true
		case thinkingTokens >= maxTokens:
			slog.Warn("anthropic thinking_budget must be less than max_tokens, ignoring", "tokens", thinkingTokens, "max_tokens", maxTokens)
		default:
			slog.Warn("anthropic thinking_budget below minimum (1024), ignoring", "tokens", thinkingTokens)
		}
	}

	// Temperature and TopP cannot be set when extended thinking is enabled
	// (Anthropic requires temperature=1.0, the default when thinking is on).
	if !thinkingEnabled {
		if c.ModelConfig.Temperature != nil {
			params.Temperature = param.NewOpt(*c.ModelConfig.Temperature)
		}
		if c.ModelConfig.TopP != nil {
			params.TopP = param.NewOpt(*c.ModelConfig.TopP)
		}
	}

	// Fine-grained tool streaming beta header; unrelated to the Files/Beta
	// message-shape betas, safe to send on every standard streaming call.
	betaHeader := option.WithHeader("anthropic-beta", "fine-grained-tool-streaming-2025-05-14")

	stream := client.Messages.NewStreaming(ctx, params, betaHeader)
	trackUsage := c.ModelConfig.TrackUsage == nil || *c.ModelConfig.TrackUsage
	ad := c.newStreamAdapter(stream, trackUsage)

	// Set up a single retry for context length errors.
	ad.retryFn = func() *streamAdapter {
		used, err := countAnthropicTokens(ctx, client, anthropic.Model(c.ModelConfig.Model), converted, sys, allTools)
		if err != nil {
			slog.Warn("failed to count tokens for retry, skipping", "error", err)
			return nil
		}
		newMaxTokens := clampMaxTokens(anthropicContextLimit(c.ModelConfig.Model), used, maxTokens)
		if newMaxTokens >= maxTokens {
			return nil
		}
		slog.Warn("retrying with clamped max_tokens after context length error", "original_max_tokens", maxTokens, "clamped_max_tokens", newMaxTokens, "used_tokens", used)
		retryParams := params
		retryParams.MaxTokens = newMaxTokens
		return c.newStreamAdapter(client.Messages.NewStreaming(ctx, retryParams, betaHeader), trackUsage)
	}

	return ad, nil
}

func (c *Client) convertMessages(messages []chat.Message) ([]anthropic.MessageParam, error) {
	var anthropicMessages []anthropic.MessageParam
	// Track whether the last appended assistant message included tool_use blocks
	// so we can ensure the immediate next message is the grouped tool_result user message.
	pendingAssistantToolUse := false

	for i := 0; i < len(messages); i++ {
		msg := &messages[i]
		if msg.Role == chat.MessageRoleSystem {
			// System messages are handled via the top-level params.System.
			continue
		}
		if msg.Role == chat.MessageRoleUser {
			if len(msg.MultiContent) > 0 {
				contentBlocks, err := convertUserMultiContent(msg.MultiContent)
				if err != nil {
					return nil, err
				}
				if len(contentBlocks) > 0 {
					anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(contentBlocks...))
				}
			} else if txt := strings.TrimSpace(msg.Content); txt != "" {
				anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(txt)))
			}
			continue
		}
		if msg.Role == chat.MessageRoleAssistant {
			contentBlocks := make([]anthropic.ContentBlockParamUnion, 0)

			// Include thinking blocks when present to preserve extended thinking context.
			if msg.ReasoningContent != "" && msg.ThinkingSignature != "" {
				contentBlocks = append(contentBlocks, anthropic.NewThinkingBlock(msg.ThinkingSignature, msg.ReasoningContent))
			} else if msg.ThinkingSignature != "" {
				contentBlocks = append(contentBlocks, anthropic.NewRedactedThinkingBlock(msg.ThinkingSignature))
			}

			if len(msg.ToolCalls) > 0 {
				blockLen := len(msg.ToolCalls)
				msgContent := strings.TrimSpace(msg.Content)
				offset := 0
				if msgContent != "" {
					blockLen++
				}
				toolUseBlocks := make([]anthropic.ContentBlockParamUnion, blockLen)
				if len(contentBlocks) > 0 {
					toolUseBlocks = append(contentBlocks, toolUseBlocks...)
				}
				if msgContent != "" {
					toolUseBlocks[len(contentBlocks)+offset] = anthropic.NewTextBlock(msgContent)
					offset = 1
				}
				for j, toolCall := range msg.ToolCalls {
					var inpts map[string]any
					if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &inpts); err != nil {
						inpts = map[string]any{}
					}
					toolUseBlocks[len(contentBlocks)+j+offset] = anthropic.ContentBlockParamUnion{
						OfToolUse: &anthropic.ToolUseBlockParam{
							ID:    toolCall.ID,
							Input: inpts,
							Name:  toolCall.Function.Name,
						},
					}
				}
				anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(toolUseBlocks...))
				pendingAssistantToolUse = true
			} else {
				if txt := strings.TrimSpace(msg.Content); txt != "" {
					contentBlocks = append(contentBlocks, anthropic.NewTextBlock(txt))
				}
				if len(contentBlocks) > 0 {
					anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(contentBlocks...))
				}
				pendingAssistantToolUse = false
			}
			continue
		}
		if msg.Role == chat.MessageRoleTool {
			// Group consecutive tool results into a single user message to
			// satisfy Anthropic's requirement that tool_use blocks are
			// immediately followed by one user message with all corresponding
			// tool_result blocks.
			var blocks []anthropic.ContentBlockParamUnion
			j := i
			for j < len(messages) && messages[j].Role == chat.MessageRoleTool {
				blocks = append(blocks, anthropic.NewToolResultBlock(messages[j].ToolCallID, strings.TrimSpace(messages[j].Content), messages[j].IsError))
				j++
			}
			if len(blocks) > 0 {
				if pendingAssistantToolUse {
					anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(blocks...))
				}
				pendingAssistantToolUse = false
			}
			i = j - 1
			continue
		}
	}

	applyMessageCacheControl(anthropicMessages)

	return anthropicMessages, nil
}

// convertUserMultiContent converts user message multi-content parts to
// Anthropic content blocks: text and images (base64 or URL).
func convertUserMultiContent(parts []chat.MessagePart) ([]anthropic.ContentBlockParamUnion, error) {
	contentBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(parts))

	for _, part := range parts {
		switch part.Type {
		case chat.MessagePartTypeText:
			if txt := strings.TrimSpace(part.Text); txt != "" {
				contentBlocks = append(contentBlocks, anthropic.NewTextBlock(txt))
			}

		case chat.MessagePartTypeImageURL:
			if part.ImageURL == nil {
				continue
			}
			if strings.HasPrefix(part.ImageURL.URL, "data:") {
				urlParts := strings.SplitN(part.ImageURL.URL, ",", 2)
				if len(urlParts) == 2 {
					mediaTypePart := urlParts[0]
					base64Data := urlParts[1]

					var mediaType string
					switch {
					case strings.Contains(mediaTypePart, "image/jpeg"):
						mediaType = "image/jpeg"
					case strings.Contains(mediaTypePart, "image/png"):
						mediaType = "image/png"
					case strings.Contains(mediaTypePart, "image/gif"):
						mediaType = "image/gif"
					case strings.Contains(mediaTypePart, "image/webp"):
						mediaType = "image/webp"
					default:
						mediaType = "image/jpeg"
					}

					contentBlocks = append(contentBlocks, anthropic.NewImageBlock(anthropic.Base64ImageSourceParam{
						Data:      base64Data,
						MediaType: anthropic.Base64ImageSourceMediaType(mediaType),
					}))
				}
			} else if strings.HasPrefix(part.ImageURL.URL, "http://") || strings.HasPrefix(part.ImageURL.URL, "https://") {
				contentBlocks = append(contentBlocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{
					URL: part.ImageURL.URL,
				}))
			}

		case chat.MessagePartTypeFile:
			if part.File == nil {
				continue
			}
			return nil, fmt.Errorf("anthropic adapter does not support file attachments (path=%q, file_id=%q)", part.File.Path, part.File.FileID)
		}
	}

	return contentBlocks, nil
}

// applyMessageCacheControl adds ephemeral cache control to the last content
// block of the last 2 messages for prompt caching.
func applyMessageCacheControl(messages []anthropic.MessageParam) {
	for i := len(messages) - 1; i >= 0 && i >= len(messages)-2; i-- {
		msg := &messages[i]
		if len(msg.Content) == 0 {
			continue
		}
		lastIdx := len(msg.Content) - 1
		block := &msg.Content[lastIdx]
		cacheCtrl := anthropic.NewCacheControlEphemeralParam()
		switch {
		case block.OfText != nil:
			block.OfText.CacheControl = cacheCtrl
		case block.OfToolUse != nil:
			block.OfToolUse.CacheControl = cacheCtrl
		case block.OfToolResult != nil:
			block.OfToolResult.CacheControl = cacheCtrl
		case block.OfImage != nil:
			block.OfImage.CacheControl = cacheCtrl
		case block.OfDocument != nil:
			block.OfDocument.CacheControl = cacheCtrl
		}
	}
}

// extractSystemBlocks converts any system-role messages into Anthropic
// system text blocks to be set on the top-level MessageNewParams.System field.
func extractSystemBlocks(messages []chat.Message) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam
	for i := range messages {
		msg := &messages[i]
		if msg.Role != chat.MessageRoleSystem {
			continue
		}

		before := len(systemBlocks)
		if len(msg.MultiContent) > 0 {
			for _, part := range msg.MultiContent {
				if part.Type == chat.MessagePartTypeText {
					if txt := strings.TrimSpace(part.Text); txt != "" {
						systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: txt})
					}
				}
			}
		} else if txt := strings.TrimSpace(msg.Content); txt != "" {
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: txt})
		}

		if msg.CacheControl && len(systemBlocks) > before {
			systemBlocks[len(systemBlocks)-1].CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
	}

	return systemBlocks
}

func convertTools(tooles []tools.Tool) ([]anthropic.ToolUnionParam, error) {
	toolParams := make([]anthropic.ToolParam, len(tooles))

	for i, tool := range tooles {
		inputSchema, err := ConvertParametersToSchema(tool.Parameters)
		if err != nil {
			return nil, err
		}

		toolParams[i] = anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: inputSchema,
		}
	}
	anthropicTools := make([]anthropic.ToolUnionParam, len(toolParams))
	for i := range toolParams {
		anthropicTools[i] = anthropic.ToolUnionParam{OfTool: &toolParams[i]}
	}

	return anthropicTools, nil
}

// ConvertParametersToSchema converts parameters to Anthropic Schema format.
func ConvertParametersToSchema(params any) (anthropic.ToolInputSchemaParam, error) {
	var schema anthropic.ToolInputSchemaParam
	if err := tools.ConvertSchema(params, &schema); err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}

	return schema, nil
}

func (c *Client) ID() string {
	return c.ModelConfig.Provider + "/" + c.ModelConfig.Model
}

// validateAnthropicSequencing verifies that for every assistant message that includes
// one or more tool_use blocks, the immediately following message is a user message
// that includes tool_result blocks for all those tool_use IDs (grouped into that single message).
func validateAnthropicSequencing(msgs []anthropic.MessageParam) error {
	for i := range msgs {
		m, ok := marshalToMap(msgs[i])
		if !ok || m["role"] != "assistant" {
			continue
		}

		toolUseIDs := collectToolUseIDs(contentArray(m))
		if len(toolUseIDs) == 0 {
			continue
		}

		if i+1 >= len(msgs) {
			return errors.New("assistant tool_use present but no subsequent user message with tool_result blocks")
		}

		next, ok := marshalToMap(msgs[i+1])
		if !ok || next["role"] != "user" {
			return errors.New("assistant tool_use must be followed by a user message containing corresponding tool_result blocks")
		}

		toolResultIDs := collectToolResultIDs(contentArray(next))
		missing := differenceIDs(toolUseIDs, toolResultIDs)
		if len(missing) > 0 {
			return fmt.Errorf("missing tool_result for tool_use id %s in the next user message", missing[0])
		}
	}
	return nil
}

// repairAnthropicSequencing inserts a synthetic user message containing tool_result blocks
// immediately after any assistant message that has tool_use blocks missing a corresponding
// tool_result in the next user message. This is a best-effort local repair to keep the
// conversation valid for Anthropic while preserving original messages, to keep the loop running.
func repairAnthropicSequencing(msgs []anthropic.MessageParam) []anthropic.MessageParam {
	if len(msgs) == 0 {
		return msgs
	}
	repaired := make([]anthropic.MessageParam, 0, len(msgs)+2)
	for i := range msgs {
		repaired = append(repaired, msgs[i])

		m, ok := marshalToMap(msgs[i])
		if !ok || m["role"] != "assistant" {
			continue
		}

		toolUseIDs := collectToolUseIDs(contentArray(m))
		if len(toolUseIDs) == 0 {
			continue
		}

		if i+1 < len(msgs) {
			if next, ok := marshalToMap(msgs[i+1]); ok && next["role"] == "user" {
				toolResultIDs := collectToolResultIDs(contentArray(next))
				for id := range toolResultIDs {
					delete(toolUseIDs, id)
				}
			}
		}

		if len(toolUseIDs) > 0 {
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(toolUseIDs))
			for id := range toolUseIDs {
				blocks = append(blocks, anthropic.NewToolResultBlock(id, "(tool execution failed)", false))
			}
			repaired = append(repaired, anthropic.NewUserMessage(blocks...))
		}
	}
	return repaired
}

// marshalToMap converts any value to a map[string]any via JSON marshaling,
// used to inspect SDK union types without depending on their internal structure.
func marshalToMap(v any) (map[string]any, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if json.Unmarshal(b, &m) != nil {
		return nil, false
	}
	return m, true
}

// contentArray extracts the content array from a marshaled message map.
func contentArray(m map[string]any) []any {
	if a, ok := m["content"].([]any); ok {
		return a
	}
	return nil
}

func collectToolUseIDs(content []any) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, c := range content {
		if cb, ok := c.(map[string]any); ok {
			if t, _ := cb["type"].(string); t == "tool_use" {
				if id, _ := cb["id"].(string); id != "" {
					ids[id] = struct{}{}
				}
			}
		}
	}
	return ids
}

func collectToolResultIDs(content []any) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, c := range content {
		if cb, ok := c.(map[string]any); ok {
			if t, _ := cb["type"].(string); t == "tool_result" {
				if id, _ := cb["tool_use_id"].(string); id != "" {
					ids[id] = struct{}{}
				}
			}
		}
	}
	return ids
}

func differenceIDs(a, b map[string]struct{}) []string {
	if len(a) == 0 {
		return nil
	}
	var missing []string
	for id := range a {
		if _, ok := b[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// anthropicContextLimit returns a reasonable default context window for
// Anthropic models. Defaults to 200k tokens (3.5-4.5 models); adjust as
// needed over time.
func anthropicContextLimit(model string) int64 {
	_ = model
	return 200000
}

// clampMaxTokens returns the effective max_tokens value after capping to the
// remaining context window (limit - used - safety), clamped to at least 1.
func clampMaxTokens(limit, used, configured int64) int64 {
	const safety = int64(1024)

	remaining := limit - used - safety
	remaining = max(remaining, 1)
	if configured > remaining {
		return remaining
	}
	return configured
}

// countAnthropicTokens calls Anthropic's Count Tokens API for the provided payload
// and returns the number of input tokens.
func countAnthropicTokens(
	ctx context.Context,
	client anthropic.Client,
	model anthropic.Model,
	messages []anthropic.MessageParam,
	system []anthropic.TextBlockParam,
	anthropicTools []anthropic.ToolUnionParam,
) (int64, error) {
	params := anthropic.MessageCountTokensParams{
		Model:    model,
		Messages: messages,
	}
	if len(system) > 0 {
		params.System = anthropic.MessageCountTokensParamsSystemUnion{
			OfTextBlockArray: system,
		}
	}
	if len(anthropicTools) > 0 {
		toolParams := make([]anthropic.MessageCountTokensToolUnionParam, len(anthropicTools))
		for i, tool := range anthropicTools {
			if tool.OfTool != nil {
				toolParams[i] = anthropic.MessageCountTokensToolUnionParam{OfTool: tool.OfTool}
			}
		}
		params.Tools = toolParams
	}

	result, err := client.Messages.CountTokens(ctx, params)
	if err != nil {
		return 0, err
	}
	return result.InputTokens, nil
}
