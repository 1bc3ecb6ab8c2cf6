// Package tools defines the provider-agnostic tool/tool-call wire shapes
// (spec.md §4.H) and the built-in tool registry the Streaming Tool Loop
// (spec.md §4.I) dispatches against.
package tools

import (
	"context"
	"encoding/json"
)

// ErrorType classifies a failed tool call for the model, per spec.md §4.I:
// failures are returned as data, never raised.
type ErrorType string

const (
	ErrorTypeTimeout            ErrorType = "Timeout"
	ErrorTypeExecutionException ErrorType = "ExecutionException"
	ErrorTypeInvalidArguments   ErrorType = "InvalidArguments"
)

// CallResult is the {success, data|error, error_type?} contract every
// built-in tool returns, matching spec.md §3's tool call shape.
type CallResult struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorType ErrorType `json:"error_type,omitempty"`
}

// Handler executes one tool call against its JSON-encoded arguments.
type Handler func(ctx context.Context, arguments string) CallResult

// Builtin pairs a Tool definition with the Handler that executes it.
type Builtin struct {
	Tool    Tool
	Handler Handler
}

// Registry is the built-in tool set available to the Streaming Tool Loop.
// Safe for concurrent reads once built; Register is not safe to call
// concurrently with Call/Tools.
type Registry struct {
	order   []string
	entries map[string]Builtin
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Builtin)}
}

// Register adds a tool to the registry, keyed by its function name.
func (r *Registry) Register(b Builtin) {
	name := b.Tool.Function.Name
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = b
}

// Tools returns the Tool definitions in registration order, for inclusion
// in a CreateChatCompletionStream call.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].Tool)
	}
	return out
}

// Call dispatches one ToolCall to its registered Handler. Unknown tool
// names return a CallResult rather than an error, matching spec.md §4.I's
// "failures return data to the model rather than raising" rule.
func (r *Registry) Call(ctx context.Context, call ToolCall) CallResult {
	b, ok := r.entries[call.Function.Name]
	if !ok {
		return CallResult{
			Success:   false,
			Error:     "unknown tool: " + call.Function.Name,
			ErrorType: ErrorTypeInvalidArguments,
		}
	}
	return b.Handler(ctx, call.Function.Arguments)
}

// decodeArgs unmarshals a tool call's JSON arguments into dst, returning a
// ready-made InvalidArguments CallResult on failure.
func decodeArgs(arguments string, dst any) *CallResult {
	if arguments == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(arguments), dst); err != nil {
		return &CallResult{
			Success:   false,
			Error:     "invalid arguments: " + err.Error(),
			ErrorType: ErrorTypeInvalidArguments,
		}
	}
	return nil
}

// DecodeArgs is the exported form of decodeArgs for built-in tool packages
// outside pkg/tools (e.g. the retriever-backed tools wired in cmd/ragcore).
func DecodeArgs(arguments string, dst any) *CallResult {
	return decodeArgs(arguments, dst)
}
