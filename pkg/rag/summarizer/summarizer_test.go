package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/agentplane/ragcore/pkg/rag/retriever"
	"github.com/agentplane/ragcore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	out string
	err error
}

func (f *fakeProvider) CreateChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.out, f.err
}

func TestSummarizeChunksUsesProviderOutput(t *testing.T) {
	s := New(&fakeProvider{out: "a concise summary"})
	hits := []retriever.Hit{{FilePath: "a.go", SymbolName: "Foo", SymbolType: "func", Content: "..."}}

	out := s.SummarizeChunks(context.Background(), hits)
	assert.True(t, strings.HasPrefix(out, ContextSummaryHeader))
	assert.Contains(t, out, "a concise summary")
}

func TestSummarizeChunksFallsBackOnProviderError(t *testing.T) {
	s := New(&fakeProvider{err: errors.New("rate limited")})
	hits := []retriever.Hit{
		{FilePath: "a.go", SymbolName: "Foo", SymbolType: "func"},
		{FilePath: "b.go", SymbolName: "Bar", SymbolType: "method"},
	}

	out := s.SummarizeChunks(context.Background(), hits)
	assert.True(t, strings.HasPrefix(out, ContextSummaryHeader))
	assert.Contains(t, out, "a.go")
	assert.Contains(t, out, "Foo")
	assert.Contains(t, out, "b.go")
	assert.Contains(t, out, "Bar")
}

func TestSummarizeChunksFallsBackWhenNoProviderConfigured(t *testing.T) {
	s := New(nil)
	hits := []retriever.Hit{{FilePath: "a.go"}}

	out := s.SummarizeChunks(context.Background(), hits)
	require.Contains(t, out, "a.go")
}

func TestSummarizeChunksReturnsEmptyStringForNoHits(t *testing.T) {
	s := New(&fakeProvider{out: "should not be called"})
	out := s.SummarizeChunks(context.Background(), nil)
	assert.Equal(t, "", out)
}

func TestSummarizeHistoryUsesProviderOutput(t *testing.T) {
	s := New(&fakeProvider{out: "the user asked about X and got Y"})
	messages := []store.Message{
		{Role: store.RoleUser, Content: "what about X?"},
		{Role: store.RoleAssistant, Content: "here's Y"},
	}

	out := s.SummarizeHistory(context.Background(), messages)
	assert.True(t, strings.HasPrefix(out, HistorySummaryHeader))
	assert.Contains(t, out, "the user asked about X and got Y")
}

func TestSummarizeHistoryFallsBackOnEmptyProviderOutput(t *testing.T) {
	s := New(&fakeProvider{out: "   "})
	messages := []store.Message{{Role: store.RoleUser, Content: "hello there"}}

	out := s.SummarizeHistory(context.Background(), messages)
	assert.Contains(t, out, "user")
	assert.Contains(t, out, "11 chars")
}
