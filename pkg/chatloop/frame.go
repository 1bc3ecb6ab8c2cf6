package chatloop

import "github.com/agentplane/ragcore/pkg/store"

// FrameType discriminates the bidirectional JSON chat channel frames of
// spec.md §6.
type FrameType string

const (
	FrameTypeConnected      FrameType = "connected"
	FrameTypeMessageHistory FrameType = "message_history"
	FrameTypeAIStream       FrameType = "ai_stream"
	FrameTypeAIToolCall     FrameType = "ai_tool_call"
	FrameTypeToolsExecuting FrameType = "ai_tools_executing"
	FrameTypeError          FrameType = "error"
)

// ToolStatus is the lifecycle state of one tool call reported via an
// ai_tool_call frame.
type ToolStatus string

const (
	ToolStatusStarted   ToolStatus = "started"
	ToolStatusSucceeded ToolStatus = "succeeded"
	ToolStatusFailed    ToolStatus = "failed"
)

// ToolSummary is one entry of an ai_tools_executing frame's tools list.
type ToolSummary struct {
	Name string `json:"name"`
}

// Frame is the single wire shape emitted on the chat channel; exactly one
// of the optional fields is populated depending on Type.
type Frame struct {
	Type FrameType `json:"type"`

	// message_history
	Messages []store.Message `json:"messages,omitempty"`

	// ai_stream
	MessageID    string         `json:"message_id,omitempty"`
	Content      string         `json:"content,omitempty"`
	Done         bool           `json:"done,omitempty"`
	HasToolCalls bool           `json:"has_tool_calls,omitempty"`
	Message      *store.Message `json:"message,omitempty"`

	// ai_tool_call
	ToolName string     `json:"tool_name,omitempty"`
	Status   ToolStatus `json:"status,omitempty"`

	// ai_tools_executing
	ToolCount int           `json:"tool_count,omitempty"`
	Tools     []ToolSummary `json:"tools,omitempty"`

	// error
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Connected builds the initial handshake frame sent on channel open.
func Connected() Frame { return Frame{Type: FrameTypeConnected} }

// MessageHistory builds the frame replaying a session's prior messages.
func MessageHistory(messages []store.Message) Frame {
	return Frame{Type: FrameTypeMessageHistory, Messages: messages}
}

// AIStreamDelta builds an in-progress streamed content frame.
func AIStreamDelta(messageID, content string) Frame {
	return Frame{Type: FrameTypeAIStream, MessageID: messageID, Content: content}
}

// AIStreamDone builds the final frame of a turn, carrying the persisted
// message.
func AIStreamDone(messageID string, hasToolCalls bool, msg store.Message) Frame {
	return Frame{
		Type:         FrameTypeAIStream,
		MessageID:    messageID,
		Done:         true,
		HasToolCalls: hasToolCalls,
		Message:      &msg,
	}
}

// AIToolCall builds a tool-call lifecycle frame.
func AIToolCall(messageID, toolName string, status ToolStatus) Frame {
	return Frame{Type: FrameTypeAIToolCall, MessageID: messageID, ToolName: toolName, Status: status}
}

// AIToolsExecuting builds the frame announcing a batch of parallel tool
// calls about to run.
func AIToolsExecuting(messageID string, names []string) Frame {
	tools := make([]ToolSummary, len(names))
	for i, n := range names {
		tools[i] = ToolSummary{Name: n}
	}
	return Frame{Type: FrameTypeToolsExecuting, MessageID: messageID, ToolCount: len(names), Tools: tools}
}

// ErrorFrame builds a channel-level error frame.
func ErrorFrame(err error) Frame { return Frame{Type: FrameTypeError, Error: err.Error()} }

// ErrorFrameWithCode builds a channel-level error frame carrying a
// machine-readable code (e.g. an HTTP-style status tag) alongside the
// message, for callers that want to discriminate handling client-side.
func ErrorFrameWithCode(err error, code string) Frame {
	return Frame{Type: FrameTypeError, Error: err.Error(), Code: code}
}
