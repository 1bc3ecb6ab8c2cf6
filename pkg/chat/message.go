// Package chat defines the provider-agnostic message and streaming types
// that sit between the Context Assembler and the Provider Adapters
// (spec.md §4.G/§4.H): one shape in, one shape out, regardless of which
// upstream model API is actually serving the request.
package chat

import "github.com/agentplane/ragcore/pkg/tools"

// MessageRole identifies who authored a message.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// MessagePartType discriminates a MessagePart's payload.
type MessagePartType string

const (
	MessagePartTypeText     MessagePartType = "text"
	MessagePartTypeImageURL MessagePartType = "image_url"
	MessagePartTypeFile     MessagePartType = "file"
)

// ImageURLDetail is the requested resolution for an image part, mirrored
// from the OpenAI vision API's detail parameter since both adapters
// accept it.
type ImageURLDetail string

const (
	ImageURLDetailLow  ImageURLDetail = "low"
	ImageURLDetailHigh ImageURLDetail = "high"
)

// MessageImageURL is an inline (data:) or remote image reference.
type MessageImageURL struct {
	URL    string
	Detail ImageURLDetail
}

// MessageFile references an uploaded or inline file part.
type MessageFile struct {
	Path     string
	FileID   string
	MimeType string
	Data     []byte
}

// MessagePart is one piece of a multi-content user message (text, image,
// or file), used when Message.MultiContent is non-empty instead of Content.
type MessagePart struct {
	Type     MessagePartType
	Text     string
	ImageURL *MessageImageURL
	File     *MessageFile
}

// Message is one turn in a conversation handed to a Provider Adapter.
type Message struct {
	Role MessageRole

	// Content is the plain-text body. Ignored in favor of MultiContent
	// when MultiContent is non-empty.
	Content      string
	MultiContent []MessagePart

	// ToolCalls is populated on assistant messages that invoked tools.
	ToolCalls []tools.ToolCall

	// ToolCallID/IsError apply to MessageRoleTool messages: which call
	// this is the result of, and whether execution failed.
	ToolCallID string
	IsError    bool

	// ReasoningContent/ThinkingSignature carry extended-thinking state
	// for reasoning-capable models (Anthropic thinking blocks, OpenAI
	// reasoning summaries) so a multi-turn tool loop can replay it.
	ReasoningContent  string
	ThinkingSignature string

	// CacheControl marks this message (its last content block) as an
	// Anthropic prompt-cache breakpoint.
	CacheControl bool
}

// FinishReason is why a completion stream stopped.
type FinishReason string

const (
	FinishReasonNull      FinishReason = ""
	FinishReasonStop      FinishReason = "stop"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonLength    FinishReason = "length"
)

// Usage reports token accounting for one completion.
type Usage struct {
	InputTokens       int64
	OutputTokens      int64
	CachedInputTokens int64
	CacheWriteTokens  int64
	ReasoningTokens   int64
}

// RateLimit surfaces provider rate-limit headers so callers can back off
// proactively instead of waiting for a 429.
type RateLimit struct {
	Limit     int64
	Remaining int64
	Reset     int64

	// RetryAfter is the provider's advised backoff in seconds, parsed from
	// a Retry-After response header when present.
	RetryAfter int64
}

// MessageDelta is the incremental content of one streamed chunk.
type MessageDelta struct {
	Role             string
	Content          string
	ReasoningContent string
	ToolCalls        []tools.ToolCall
	FunctionCall     *tools.FunctionCall
}

// MessageStreamChoice is one choice within a streamed chunk; providers
// that only ever return one choice still populate index 0.
type MessageStreamChoice struct {
	Index        int
	Delta        MessageDelta
	FinishReason FinishReason
}

// MessageStreamResponse is one chunk of a streaming completion.
type MessageStreamResponse struct {
	ID        string
	Object    string
	Created   int64
	Model     string
	Choices   []MessageStreamChoice
	Usage     *Usage
	RateLimit *RateLimit
}

// MessageStream is implemented by each provider's stream adapter.
type MessageStream interface {
	Recv() (MessageStreamResponse, error)
	Close()
}
