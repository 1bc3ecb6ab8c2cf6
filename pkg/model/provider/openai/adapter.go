package openai

import (
	"io"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/agentplane/ragcore/pkg/chat"
	"github.com/agentplane/ragcore/pkg/tools"
)

// StreamAdapter adapts a Chat Completions streaming response to the
// common chat.MessageStream interface. Tool-call deltas after the first
// for a given index omit the call ID (the API only sends it once), so
// toolCallIDs remembers the ID seen at each index and re-attaches it to
// every subsequent delta for that index.
type StreamAdapter struct {
	stream           *ssestream.Stream[openai.ChatCompletionChunk]
	trackUsage       bool
	lastFinishReason chat.FinishReason
	toolCallIDs      map[int64]string
}

func newStreamAdapter(stream *ssestream.Stream[openai.ChatCompletionChunk], trackUsage bool) *StreamAdapter {
	return &StreamAdapter{
		stream:      stream,
		trackUsage:  trackUsage,
		toolCallIDs: make(map[int64]string),
	}
}

// Recv gets the next completion chunk.
func (a *StreamAdapter) Recv() (chat.MessageStreamResponse, error) {
	if !a.stream.Next() {
		if err := a.stream.Err(); err != nil {
			return chat.MessageStreamResponse{}, err
		}
		return chat.MessageStreamResponse{}, io.EOF
	}

	chunk := a.stream.Current()
	response := chat.MessageStreamResponse{
		ID:      chunk.ID,
		Object:  chunk.Object,
		Created: chunk.Created,
		Model:   chunk.Model,
		Choices: make([]chat.MessageStreamChoice, len(chunk.Choices)),
	}

	// StreamOptions.IncludeUsage sends one extra chunk at the end with an
	// empty Choices slice and populated Usage; reuse the last seen finish
	// reason for it since the API doesn't repeat it there.
	if chunk.Usage.TotalTokens > 0 {
		response.Usage = &chat.Usage{
			InputTokens:       chunk.Usage.PromptTokens,
			OutputTokens:      chunk.Usage.CompletionTokens,
			CachedInputTokens: chunk.Usage.PromptTokensDetails.CachedTokens,
			ReasoningTokens:   chunk.Usage.CompletionTokensDetails.ReasoningTokens,
		}
		finishReason := a.lastFinishReason
		if finishReason == "" {
			finishReason = chat.FinishReasonStop
		}
		response.Choices = append(response.Choices, chat.MessageStreamChoice{FinishReason: finishReason})
	}

	for i := range chunk.Choices {
		choice := &chunk.Choices[i]

		finishReason := chat.FinishReason(choice.FinishReason)
		if finishReason != "" {
			a.lastFinishReason = finishReason
		}

		delta := chat.MessageDelta{
			Role:    string(choice.Delta.Role),
			Content: choice.Delta.Content,
		}

		if len(choice.Delta.ToolCalls) > 0 {
			delta.ToolCalls = make([]tools.ToolCall, len(choice.Delta.ToolCalls))
			for j, tc := range choice.Delta.ToolCalls {
				id := tc.ID
				if id == "" {
					id = a.toolCallIDs[tc.Index]
				} else {
					a.toolCallIDs[tc.Index] = id
				}
				index := int(tc.Index)
				delta.ToolCalls[j] = tools.ToolCall{
					Index: &index,
					ID:    id,
					Type:  tools.ToolType(tc.Type),
					Function: tools.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				}
			}
		}

		response.Choices[i] = chat.MessageStreamChoice{
			Index:        int(choice.Index),
			FinishReason: finishReason,
			Delta:        delta,
		}
	}

	return response, nil
}

// Close closes the stream.
func (a *StreamAdapter) Close() {
	a.stream.Close()
}
