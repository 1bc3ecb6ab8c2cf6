// Package assembler implements the Context Assembler (spec.md §4.G):
// deterministic, token-budgeted construction of the message list handed
// to the Provider Adapter, combining retriever hits, conversation
// history, Secret Filter redaction, and Summarizer overflow compaction.
package assembler

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentplane/ragcore/pkg/rag/retriever"
	"github.com/agentplane/ragcore/pkg/rag/summarizer"
	"github.com/agentplane/ragcore/pkg/secretfilter"
	"github.com/agentplane/ragcore/pkg/store"
)

const (
	// retrievedContextShare and historyShare are the 70/30 split from
	// spec.md §4.G step 2.
	retrievedContextShare = 0.7
	historyShare          = 0.3

	// defaultTopNChunks is the default top-N chunk cap from step 3.
	defaultTopNChunks = 6
)

// Role is a message role in the assembled output, pre-adaptation to a
// specific provider's naming (the Provider Adapter does its own mapping
// on top of this for provider-specific surfaces).
type Role string

const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the assembled prompt.
type Message struct {
	Role    Role
	Content string
}

// Report accounts for the token budget spent assembling a prompt.
type Report struct {
	ContextWindow        int
	MaxResponseTokens    int
	RetrievedContextUsed int
	HistoryUsed          int
	ChunksIncluded       int
	ChunksSummarized     int
	ChunksDropped        int // dropped by the Secret Filter
	HistoryIncluded      int
	HistorySummarized    int
	TotalTokens          int
}

// Config parameterizes one Assemble call.
type Config struct {
	ContextWindow     int
	MaxResponseTokens int
	TopNChunks        int  // 0 defaults to 6, per spec.md §4.G step 3
	Strict            bool // strict secret-filter mode: hard-exclude high-severity hits
	ReasoningModel    bool // converts system -> developer/first-user, per step 8
}

// Assembler builds provider-ready message lists from retrieval output.
type Assembler struct {
	summarizer *summarizer.Summarizer
}

// New builds an Assembler. summarizer may be nil only if callers are
// certain overflow will never occur (tests); production wiring always
// supplies one so F's fallback kicks in when overflow does happen.
func New(s *summarizer.Summarizer) *Assembler {
	return &Assembler{summarizer: s}
}

// Assemble implements spec.md §4.G's 8-step budgeting algorithm. hits
// must already be sorted by descending score (the Retriever's contract).
// history is in chronological order (oldest first).
func (a *Assembler) Assemble(ctx context.Context, systemPrompt, userPrompt string, history []store.Message, hits []retriever.Hit, cfg Config) ([]Message, Report, error) {
	topN := cfg.TopNChunks
	if topN <= 0 {
		topN = defaultTopNChunks
	}

	// Step 1: reserve max_response_tokens from context_window.
	available := cfg.ContextWindow - cfg.MaxResponseTokens
	if available < 0 {
		available = 0
	}

	// Step 2: 70/30 split between retrieved context and history+summary.
	// historyBudget is the complement of contextBudget (not
	// available*historyShare independently) so the two always sum to
	// available regardless of rounding.
	contextBudget := int(float64(available) * retrievedContextShare)
	historyBudget := available - contextBudget

	// Step 3: top-N chunks by score within the retrieved-context budget.
	candidates := hits
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	keptChunks, overflowChunks, contextUsed := fitChunks(candidates, contextBudget)

	// Step 5: Secret Filter chunk-by-chunk before inclusion.
	filteredChunks, dropped := filterChunks(keptChunks, cfg.Strict)

	// Step 4: keep most recent history messages that fit; hand the
	// (older) prefix overflow to the Summarizer.
	keptHistory, overflowHistory, historyUsed := fitHistory(history, historyBudget)

	var report Report
	report.ContextWindow = cfg.ContextWindow
	report.MaxResponseTokens = cfg.MaxResponseTokens
	report.RetrievedContextUsed = contextUsed
	report.HistoryUsed = historyUsed
	report.ChunksIncluded = len(filteredChunks)
	report.ChunksDropped = dropped
	report.HistoryIncluded = len(keptHistory)

	var messages []Message

	sysContent := systemPrompt
	if a.summarizer != nil {
		if len(overflowChunks) > 0 {
			summary := a.summarizer.SummarizeChunks(ctx, overflowChunks)
			if summary != "" {
				report.ChunksSummarized = len(overflowChunks)
				sysContent = appendSection(sysContent, summary)
			}
		}
		if len(overflowHistory) > 0 {
			summary := a.summarizer.SummarizeHistory(ctx, overflowHistory)
			if summary != "" {
				report.HistorySummarized = len(overflowHistory)
				sysContent = appendSection(sysContent, summary)
			}
		}
	}

	// Step 6: format kept chunks, glued with "---".
	if chunkBlock := formatChunks(filteredChunks); chunkBlock != "" {
		sysContent = appendSection(sysContent, chunkBlock)
	}

	messages = append(messages, Message{Role: RoleSystem, Content: sysContent})
	for _, m := range keptHistory {
		messages = append(messages, Message{Role: Role(m.Role), Content: m.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: userPrompt})

	// Step 8: reasoning-model role conversion.
	if cfg.ReasoningModel {
		messages = convertForReasoningModel(messages)
	}

	for _, m := range messages {
		report.TotalTokens += EstimateTokens(m.Content)
	}

	return messages, report, nil
}

// fitChunks walks candidates in order (already score-sorted) and keeps as
// many as fit within budget, returning the rest as overflow.
func fitChunks(candidates []retriever.Hit, budget int) (kept, overflow []retriever.Hit, used int) {
	for _, h := range candidates {
		t := EstimateTokens(h.Content)
		if used+t > budget {
			overflow = append(overflow, h)
			continue
		}
		kept = append(kept, h)
		used += t
	}
	return kept, overflow, used
}

// fitHistory walks history most-recent-first, keeping what fits; anything
// that doesn't fit is the (older) overflow prefix, restored to
// chronological order for the Summarizer.
func fitHistory(history []store.Message, budget int) (kept, overflow []store.Message, used int) {
	var keptRev []store.Message
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		t := EstimateTokens(m.Content)
		if used+t > budget {
			overflow = append([]store.Message{m}, overflow...)
			continue
		}
		keptRev = append(keptRev, m)
		used += t
	}
	for i := len(keptRev) - 1; i >= 0; i-- {
		kept = append(kept, keptRev[i])
	}
	return kept, overflow, used
}

// filterChunks applies the Secret Filter per spec.md §4.G step 5: drop a
// chunk if its redaction ratio exceeds 0.5, or in strict mode if it
// contains a high-severity secret, regardless of ratio.
func filterChunks(hits []retriever.Hit, strict bool) ([]retriever.Hit, int) {
	var kept []retriever.Hit
	dropped := 0
	for _, h := range hits {
		result := secretfilter.Filter(h.Content)
		if result.ShouldDrop(strict) {
			dropped++
			continue
		}
		h.Content = result.Content
		kept = append(kept, h)
	}
	return kept, dropped
}

// formatChunks implements step 6: "# File: <path>[ (lines a-b)]" headers,
// an optional symbol tag, chunks glued by "---".
func formatChunks(hits []retriever.Hit) string {
	if len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "# File: %s", h.FilePath)
		if h.StartLine > 0 && h.EndLine > 0 {
			fmt.Fprintf(&b, " (lines %d-%d)", h.StartLine, h.EndLine)
		}
		if h.SymbolName != "" {
			fmt.Fprintf(&b, " [%s %s]", h.SymbolType, h.SymbolName)
		}
		b.WriteString("\n")
		b.WriteString(h.Content)
	}
	return b.String()
}

func appendSection(base, section string) string {
	if base == "" {
		return section
	}
	return base + "\n\n" + section
}

// convertForReasoningModel implements step 8: system -> developer role
// (Responses API convention). If a provider instead requires folding the
// system content into the first user turn, the Provider Adapter performs
// that transformation itself using the RoleDeveloper marker this leaves
// behind.
func convertForReasoningModel(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	for i := range out {
		if out[i].Role == RoleSystem {
			out[i].Role = RoleDeveloper
		}
	}
	return out
}
