package summarizer

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/agentplane/ragcore/pkg/chat"
	"github.com/agentplane/ragcore/pkg/model/provider"
)

// StreamProvider adapts a provider.Provider (the Provider Adapter's
// streaming-only interface) to this package's single-shot Provider, by
// draining the stream and concatenating its content deltas. Grounded on
// the teacher's pkg/runtime accumulation loop (read every chunk's
// Delta.Content until io.EOF), generalized down to plain string
// concatenation since the Summarizer has no need for tool calls or
// incremental display.
type StreamProvider struct {
	P provider.Provider
}

// CreateChatCompletion implements Provider.
func (s StreamProvider) CreateChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []chat.Message{
		{Role: chat.MessageRoleSystem, Content: systemPrompt},
		{Role: chat.MessageRoleUser, Content: userPrompt},
	}
	stream, err := s.P.CreateChatCompletionStream(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		for _, choice := range chunk.Choices {
			b.WriteString(choice.Delta.Content)
		}
	}
	return b.String(), nil
}
