// Package chatloop implements the Streaming Tool Loop (spec.md §4.I): the
// per-turn state machine that assembles context, streams a completion,
// executes requested tools in parallel, loops on follow-up rounds, scores
// the final answer with Confidence & Quality, and persists it. Grounded on
// the teacher's pkg/runtime/runtime.go streaming/tool-call-accumulation
// pattern, generalized from the teacher's sequential approval-gated
// execution to the parallel execution spec.md §4.I requires.
package chatloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentplane/ragcore/pkg/assembler"
	"github.com/agentplane/ragcore/pkg/chat"
	"github.com/agentplane/ragcore/pkg/confidence"
	"github.com/agentplane/ragcore/pkg/model/provider"
	"github.com/agentplane/ragcore/pkg/rag/retriever"
	"github.com/agentplane/ragcore/pkg/store"
	"github.com/agentplane/ragcore/pkg/tools"
)

// MaxRounds bounds how many tool-call round-trips a single turn may make
// before the loop gives up and returns whatever text it has, per spec.md
// §4.I.
const MaxRounds = 3

// DefaultToolTimeout bounds a single tool call's execution.
const DefaultToolTimeout = 30 * time.Second

// Emit delivers one Frame to the client for a turn. Implementations must
// be safe to call from the turn's goroutine only (no concurrent Emit calls
// within one turn).
type Emit func(Frame)

// ProjectResolver supplies the project-scoped configuration a turn needs:
// which model to stream against, which document projects to retrieve
// from, and the assembler's token-budget parameters. Concrete
// implementations in cmd/ragcore wire this to configservice/modelcatalog.
type ProjectResolver interface {
	Resolve(ctx context.Context, projectID string) (TurnConfig, error)
}

// TurnConfig is everything chatloop needs to run one turn beyond the
// conversation itself.
type TurnConfig struct {
	Provider     provider.Provider
	SystemPrompt string
	ProjectIDs   []string
	Assembler    assembler.Config
	ToolTimeout  time.Duration
}

// Loop runs the Streaming Tool Loop against a persistence store, retriever,
// tool registry, and confidence scorer.
type Loop struct {
	db         *store.Store
	retriever  *retriever.Retriever
	assembler  *assembler.Assembler
	tools      *tools.Registry
	confidence *confidence.Scorer
	resolver   ProjectResolver
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
	cancels  map[string]context.CancelFunc
}

// New builds a Loop.
func New(db *store.Store, r *retriever.Retriever, asm *assembler.Assembler, reg *tools.Registry, scorer *confidence.Scorer, resolver ProjectResolver) *Loop {
	return &Loop{
		db:         db,
		retriever:  r,
		assembler:  asm,
		tools:      reg,
		confidence: scorer,
		resolver:   resolver,
		now:        time.Now,
		sessions:   make(map[string]*sync.Mutex),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// sessionLock returns the per-session mutex, creating it on first use.
// Holding it for the duration of one assistant turn serializes concurrent
// requests against the same session (spec.md §5).
func (l *Loop) sessionLock(sessionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.sessions[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.sessions[sessionID] = m
	}
	return m
}

// Cancel stops an in-flight turn for sessionID, if any, via its registered
// context.CancelFunc. Returns false if no turn is running.
func (l *Loop) Cancel(sessionID string) bool {
	l.mu.Lock()
	cancel, ok := l.cancels[sessionID]
	l.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (l *Loop) registerCancel(sessionID string, cancel context.CancelFunc) {
	l.mu.Lock()
	l.cancels[sessionID] = cancel
	l.mu.Unlock()
}

func (l *Loop) clearCancel(sessionID string) {
	l.mu.Lock()
	delete(l.cancels, sessionID)
	l.mu.Unlock()
}

// RunTurn runs one user turn to completion: assemble context, stream a
// completion, execute any requested tools, loop up to MaxRounds, score and
// persist the final answer. Frames are delivered to emit as they occur;
// RunTurn blocks until the turn finishes, fails, or ctx is cancelled.
func (l *Loop) RunTurn(ctx context.Context, sessionID, userContent string, emit Emit) error {
	lock := l.sessionLock(sessionID)
	if !lock.TryLock() {
		return ErrSessionBusy
	}
	defer lock.Unlock()

	sess, err := l.db.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	l.registerCancel(sessionID, cancel)
	defer func() {
		cancel()
		l.clearCancel(sessionID)
	}()

	cfg, err := l.resolver.Resolve(turnCtx, sess.ProjectID)
	if err != nil {
		return fmt.Errorf("chatloop: resolve project config: %w", err)
	}
	if cfg.Provider == nil {
		return ErrNoModelConfigured
	}
	toolTimeout := cfg.ToolTimeout
	if toolTimeout <= 0 {
		toolTimeout = DefaultToolTimeout
	}

	history, err := l.db.MessagesBySession(turnCtx, sessionID, false)
	if err != nil {
		return fmt.Errorf("chatloop: load history: %w", err)
	}

	userMsg := &store.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      store.RoleUser,
		Content:   userContent,
		CreatedAt: l.now(),
	}
	if err := l.db.AddMessage(turnCtx, userMsg); err != nil {
		return fmt.Errorf("chatloop: persist user message: %w", err)
	}

	hits, err := l.retriever.Search(turnCtx, userContent, cfg.ProjectIDs, retriever.Filters{}, 0)
	if err != nil {
		slog.Warn("chatloop: retrieval failed, continuing without context", "session_id", sessionID, "error", err)
		hits = nil
	}

	assembled, _, err := l.assembler.Assemble(turnCtx, cfg.SystemPrompt, userContent, history, hits, cfg.Assembler)
	if err != nil {
		return fmt.Errorf("chatloop: assemble context: %w", err)
	}

	messages := toChatMessages(assembled)

	assistantMsgID := uuid.New().String()
	var finalText string
	var usedTools bool
	var lastHits = hits

	for round := 0; round < MaxRounds; round++ {
		text, toolCalls, err := l.streamOnce(turnCtx, cfg.Provider, messages, assistantMsgID, emit)
		if err != nil {
			return fmt.Errorf("chatloop: stream completion: %w", err)
		}
		if len(toolCalls) == 0 {
			finalText = text
			break
		}

		usedTools = true
		emit(AIToolsExecuting(assistantMsgID, toolNames(toolCalls)))

		results := l.executeTools(turnCtx, toolCalls, toolTimeout, assistantMsgID, emit)

		messages = append(messages, chat.Message{Role: chat.MessageRoleAssistant, Content: text, ToolCalls: toolCalls})
		for i, tc := range toolCalls {
			messages = append(messages, chat.Message{
				Role:       chat.MessageRoleTool,
				Content:    results[i].Output,
				ToolCallID: tc.ID,
				IsError:    results[i].isError,
			})
		}

		if round == MaxRounds-1 {
			finalText = text
			if finalText == "" {
				finalText = store.EmptyMessageSentinel
			}
		}
	}

	assessment := l.confidence.Assess(turnCtx, lastHits, nil, l.now())

	referencedChunks := make([]string, 0, len(lastHits))
	for _, h := range lastHits {
		referencedChunks = append(referencedChunks, h.ChunkID)
	}

	assistantMsg := store.Message{
		ID:                    assistantMsgID,
		SessionID:             sessionID,
		Role:                  store.RoleAssistant,
		Content:               finalText,
		CreatedAt:             l.now(),
		RAGUsed:               len(lastHits) > 0,
		RAGConfidence:         assessment.Confidence,
		KnowledgeSourcesCount: assessment.KnowledgeSourcesCount,
		RAGStatus:             assessment.Status,
		ReferencedChunks:      referencedChunks,
		SearchResultsCount:    len(lastHits),
	}
	if err := l.db.AddMessage(turnCtx, &assistantMsg); err != nil {
		return fmt.Errorf("chatloop: persist assistant message: %w", err)
	}

	emit(AIStreamDone(assistantMsgID, usedTools, assistantMsg))
	return nil
}

// streamOnce drives one CreateChatCompletionStream call to completion,
// forwarding text deltas to emit as ai_stream frames and accumulating
// tool-call fragments by index, matching the teacher's
// toolCallIndex/emittedPartial bookkeeping in pkg/runtime/runtime.go.
func (l *Loop) streamOnce(ctx context.Context, p provider.Provider, messages []chat.Message, messageID string, emit Emit) (string, []tools.ToolCall, error) {
	stream, err := p.CreateChatCompletionStream(ctx, messages, l.tools.Tools())
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	var text string
	calls := make(map[int]*tools.ToolCall)
	var order []int

	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", nil, err
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			text += choice.Delta.Content
			emit(AIStreamDelta(messageID, choice.Delta.Content))
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			existing, ok := calls[idx]
			if !ok {
				cp := tc
				calls[idx] = &cp
				order = append(order, idx)
				continue
			}
			existing.Function.Name += tc.Function.Name
			existing.Function.Arguments += tc.Function.Arguments
			if existing.ID == "" {
				existing.ID = tc.ID
			}
		}

		if choice.FinishReason != chat.FinishReasonNull {
			break
		}
	}

	toolCalls := make([]tools.ToolCall, 0, len(order))
	for _, idx := range order {
		toolCalls = append(toolCalls, *calls[idx])
	}
	return text, toolCalls, nil
}

// toolExecResult pairs a tool call's output text with whether it failed,
// for inlining into a follow-up tool message.
type toolExecResult struct {
	Output  string
	isError bool
}

// executeTools runs every call in toolCalls concurrently, each bounded by
// timeout, reporting per-call started/succeeded/failed frames. A call's
// own failure (including timeout) is returned as CallResult data rather
// than aborting the batch, per spec.md §4.I.
func (l *Loop) executeTools(ctx context.Context, toolCalls []tools.ToolCall, timeout time.Duration, messageID string, emit Emit) []toolExecResult {
	results := make([]toolExecResult, len(toolCalls))

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, tc := range toolCalls {
		i, tc := i, tc
		g.Go(func() error {
			emit(AIToolCall(messageID, tc.Function.Name, ToolStatusStarted))

			callCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			res := l.tools.Call(callCtx, tc)
			if callCtx.Err() != nil && res.Success {
				res.Success = false
				res.Error = "tool call timed out"
				res.ErrorType = tools.ErrorTypeTimeout
			}

			status := ToolStatusSucceeded
			if !res.Success {
				status = ToolStatusFailed
			}
			emit(AIToolCall(messageID, tc.Function.Name, status))

			out := encodeCallResult(res)
			mu.Lock()
			results[i] = toolExecResult{Output: out, isError: !res.Success}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func toolNames(calls []tools.ToolCall) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Function.Name
	}
	return names
}

// toChatMessages bridges assembler.Message (the Context Assembler's
// output shape) to chat.Message (the Provider Adapter's input shape).
// assembler.RoleDeveloper has no chat.MessageRole counterpart (the
// Provider Adapters only special-case system/user/assistant/tool), so
// step 8's reasoning-model conversion is folded back into system here.
func toChatMessages(msgs []assembler.Message) []chat.Message {
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		role := chat.MessageRole(m.Role)
		if m.Role == assembler.RoleDeveloper {
			role = chat.MessageRoleSystem
		}
		out[i] = chat.Message{Role: role, Content: m.Content}
	}
	return out
}

// encodeCallResult serializes a tool CallResult to the JSON text handed
// back to the model as a tool-role message's content.
func encodeCallResult(res tools.CallResult) string {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q,"error_type":"ExecutionException"}`, err.Error())
	}
	return string(b)
}
