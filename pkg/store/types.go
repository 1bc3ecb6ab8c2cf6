// Package store persists the entities described by the data model: projects,
// documents, chunks, sessions, messages, model configurations, runtime
// config, usage events and feedback. It is a thin layer over modernc.org/sqlite,
// grounded on the teacher's pkg/session SQLite store: one *sql.DB, migrations
// run at open time, JSON columns for nested structures.
package store

import "time"

// ProjectStatus is the lifecycle state of a Project.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
	ProjectDeleted  ProjectStatus = "deleted"
)

type Project struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"owner_id"`
	Status    ProjectStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	// RepoRoot is the local filesystem path of the project's git checkout,
	// if any. Empty for projects backed only by uploaded documents.
	// Consulted by pkg/rag/gitsearch to resolve commit:/blame:/lint:
	// structural queries to a repository.
	RepoRoot string `json:"repo_root,omitempty"`
}

type Document struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	FilePath    string    `json:"file_path"`
	Language    string    `json:"language"`
	ContentHash string    `json:"content_hash"`
	IsIndexed   bool      `json:"is_indexed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Chunk is a contiguous, semantically-bounded slice of a Document.
// FilePath and Language are populated only by queries that join through
// documents (e.g. AllChunks); they are empty on ChunksByDocument results
// since the caller already knows the owning document.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Content    string    `json:"content"`
	SymbolName string    `json:"symbol_name,omitempty"`
	SymbolType string    `json:"symbol_type,omitempty"`
	StartLine  int       `json:"start_line"`
	EndLine    int       `json:"end_line"`
	Tokens     int       `json:"tokens"`
	Embedding  []float64 `json:"embedding,omitempty"`
	FilePath   string    `json:"file_path,omitempty"`
	Language   string    `json:"language,omitempty"`
}

// HasEmbedding reports whether this chunk has been embedded.
func (c Chunk) HasEmbedding() bool { return len(c.Embedding) > 0 }

type Session struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

type RAGStatus string

const (
	RAGStatusActive   RAGStatus = "active"
	RAGStatusDegraded RAGStatus = "degraded"
	RAGStatusPoor     RAGStatus = "poor"
	RAGStatusError    RAGStatus = "error"
	RAGStatusStandard RAGStatus = "standard"
)

// EmptyMessageSentinel replaces assistant content that would otherwise be
// empty, satisfying the "content is never empty" invariant.
const EmptyMessageSentinel = "I wasn't able to generate a response for that. Could you rephrase your question?"

// ToolCallRecord is the persisted shape of a tool invocation attached to a Message.
type ToolCallRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result,omitempty"`
	Success   bool   `json:"success"`
}

type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	IsDeleted bool        `json:"is_deleted"`

	RAGUsed               bool      `json:"rag_used"`
	RAGConfidence         float64   `json:"rag_confidence,omitempty"`
	KnowledgeSourcesCount int       `json:"knowledge_sources_count"`
	RAGStatus             RAGStatus `json:"rag_status,omitempty"`

	CodeSnippets     []string         `json:"code_snippets,omitempty"`
	ReferencedChunks []string         `json:"referenced_chunks,omitempty"`
	ToolCalls        []ToolCallRecord `json:"tool_calls,omitempty"`

	// Supplemented from original_source/.../schemas/chat.py and generation.py:
	// dropped from the distilled spec's prose but present in the original and
	// useful for audit; populated by the streaming tool loop.
	ModelUsed               string `json:"model_used,omitempty"`
	SearchResultsCount      int    `json:"search_results_count,omitempty"`
	AppliedGenerationParams string `json:"applied_generation_params,omitempty"` // JSON blob
}

// ModelConfiguration mirrors spec.md §3; persisted copy of a modelcatalog.Model
// used for fast capability lookups without round-tripping through the catalog.
type ModelConfiguration struct {
	ModelID           string  `json:"model_id"`
	Provider          string  `json:"provider"`
	ModelFamily       string  `json:"model_family"`
	SupportsReasoning bool    `json:"supports_reasoning"`
	SupportsStreaming bool    `json:"supports_streaming"`
	SupportsFunctions bool    `json:"supports_functions"`
	SupportsVision    bool    `json:"supports_vision"`
	MaxContextWindow  int     `json:"max_context_window"`
	MaxOutputTokens   int     `json:"max_output_tokens"`
	CostInputPer1K    float64 `json:"cost_input_per_1k"`
	CostOutputPer1K   float64 `json:"cost_output_per_1k"`
	IsAvailable       bool    `json:"is_available"`
	IsDeprecated      bool    `json:"is_deprecated"`
}

// RuntimeConfigRow is a single typed key/value pair in the Config Store.
type RuntimeConfigRow struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"` // JSON-encoded
	ValueType string    `json:"value_type"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RuntimeConfigHistoryRow is one append-only history entry for a config key.
type RuntimeConfigHistoryRow struct {
	Key       string    `json:"key"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	Actor     string    `json:"actor"`
	ChangedAt time.Time `json:"changed_at"`
}

type UsageEvent struct {
	ModelID        string    `json:"model_id"`
	Provider       string    `json:"provider"`
	InputTokens    int64     `json:"input_tokens"`
	OutputTokens   int64     `json:"output_tokens"`
	Success        bool      `json:"success"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Feature        string    `json:"feature"`
	Timestamp      time.Time `json:"timestamp"`
}

// UsageMetrics aggregates UsageEvents per (model, hour).
type UsageMetrics struct {
	ModelID      string    `json:"model_id"`
	Hour         time.Time `json:"hour"`
	Requests     int64     `json:"requests"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	Failures     int64     `json:"failures"`
}

type Feedback struct {
	MessageID    string `json:"message_id"`
	UserID       string `json:"user_id"`
	Rating       int    `json:"rating"` // -1..5
	Helpful      *bool  `json:"helpful,omitempty"`
	Accuracy     int    `json:"accuracy,omitempty"`     // 1..5
	Clarity      int    `json:"clarity,omitempty"`      // 1..5
	Completeness int    `json:"completeness,omitempty"` // 1..5
}
