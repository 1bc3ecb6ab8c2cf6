// Package summarizer implements the Summarizer (spec.md §4.F): it
// compacts overflow retrieved chunks and overflow conversation history into
// a short Markdown section when the Context Assembler's token budget can't
// fit them, calling the active provider for a free-form summary and
// falling back to a deterministic file/symbol list on any failure.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentplane/ragcore/pkg/rag/retriever"
	"github.com/agentplane/ragcore/pkg/store"
)

// Fixed section headers from spec.md §4.F, used by the Context Assembler
// to locate and, if needed, truncate summary sections.
const (
	ContextSummaryHeader = "## Summary of Additional Context"
	HistorySummaryHeader = "## Previous Conversation Summary"
)

// Provider is the minimal completion surface the Summarizer needs from
// Component H, mirroring the teacher's CreateChatCompletion shape
// (pkg/model/provider.Provider.CreateChatCompletion): one system prompt,
// one user prompt, one text response.
type Provider interface {
	CreateChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Summarizer compacts overflow content for the Context Assembler.
type Summarizer struct {
	provider Provider
}

// New builds a Summarizer. provider may be nil, in which case every call
// falls back to the deterministic summary immediately.
func New(provider Provider) *Summarizer {
	return &Summarizer{provider: provider}
}

// SummarizeChunks compacts overflow retriever.Hit chunks that didn't fit
// the Context Assembler's retrieved-context budget, per spec.md §4.F.
func (s *Summarizer) SummarizeChunks(ctx context.Context, hits []retriever.Hit) string {
	if len(hits) == 0 {
		return ""
	}

	body, err := s.summarize(ctx, buildChunkSummaryPrompt(hits))
	if err != nil {
		slog.Warn("summarizer: LLM chunk summarization failed, using deterministic fallback", "error", err)
		body = deterministicChunkSummary(hits)
	}
	return ContextSummaryHeader + "\n" + body
}

// SummarizeHistory compacts overflow conversation history messages that
// didn't fit the Context Assembler's history budget.
func (s *Summarizer) SummarizeHistory(ctx context.Context, messages []store.Message) string {
	if len(messages) == 0 {
		return ""
	}

	body, err := s.summarize(ctx, buildHistorySummaryPrompt(messages))
	if err != nil {
		slog.Warn("summarizer: LLM history summarization failed, using deterministic fallback", "error", err)
		body = deterministicHistorySummary(messages)
	}
	return HistorySummaryHeader + "\n" + body
}

func (s *Summarizer) summarize(ctx context.Context, userPrompt string) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("summarizer: no provider configured")
	}
	out, err := s.provider.CreateChatCompletion(ctx, summarizerSystemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("summarizer: provider returned empty summary")
	}
	return out, nil
}

const summarizerSystemPrompt = `You compress retrieved code/document context or conversation history into a short Markdown summary.
Preserve every file path, identifier, and symbol kind mentioned in the input.
Be concise: a few sentences or a short bulleted list, never a restatement of the full input.`

func buildChunkSummaryPrompt(hits []retriever.Hit) string {
	var b strings.Builder
	b.WriteString("Summarize the following retrieved chunks, preserving file paths and symbol names:\n\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "# File: %s", h.FilePath)
		if h.SymbolName != "" {
			fmt.Fprintf(&b, " (%s %s)", h.SymbolType, h.SymbolName)
		}
		b.WriteString("\n")
		b.WriteString(h.Content)
		b.WriteString("\n---\n")
	}
	return b.String()
}

func buildHistorySummaryPrompt(messages []store.Message) string {
	var b strings.Builder
	b.WriteString("Summarize the following conversation history:\n\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

// deterministicChunkSummary is the fallback used when the provider call
// fails: a bulleted list of file paths and symbol names, no content.
func deterministicChunkSummary(hits []retriever.Hit) string {
	var b strings.Builder
	seen := make(map[string]bool)
	for _, h := range hits {
		key := h.FilePath + "|" + h.SymbolName
		if seen[key] {
			continue
		}
		seen[key] = true

		if h.SymbolName != "" {
			fmt.Fprintf(&b, "- `%s`: %s `%s`\n", h.FilePath, h.SymbolType, h.SymbolName)
		} else {
			fmt.Fprintf(&b, "- `%s`\n", h.FilePath)
		}
	}
	return b.String()
}

// deterministicHistorySummary is the fallback for history overflow: a
// one-line-per-message role/length listing, since there's no safe
// file/symbol analogue for chat turns.
func deterministicHistorySummary(messages []store.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "- %s (%d chars)\n", m.Role, len(m.Content))
	}
	return b.String()
}
