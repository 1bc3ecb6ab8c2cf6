package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agentplane/ragcore/pkg/sqliteutil"
)

var (
	ErrEmptyID  = errors.New("id cannot be empty")
	ErrNotFound = errors.New("not found")
)

// Store is the SQLite-backed persistence layer for every entity in the data
// model. Grounded on the teacher's pkg/session.SQLiteSessionStore: a single
// *sql.DB opened with WAL + busy_timeout, schema created idempotently at
// open time, JSON columns for nested structures.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			repo_root TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			file_path TEXT NOT NULL,
			language TEXT,
			content_hash TEXT,
			is_indexed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project_id)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			symbol_name TEXT,
			symbol_type TEXT,
			start_line INTEGER,
			end_line INTEGER,
			tokens INTEGER,
			embedding TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_symbol ON chunks(symbol_name)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			title TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			rag_used INTEGER NOT NULL DEFAULT 0,
			rag_confidence REAL,
			knowledge_sources_count INTEGER NOT NULL DEFAULT 0,
			rag_status TEXT,
			code_snippets TEXT,
			referenced_chunks TEXT,
			tool_calls TEXT,
			model_used TEXT,
			search_results_count INTEGER NOT NULL DEFAULT 0,
			applied_generation_params TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS model_configurations (
			model_id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			model_family TEXT,
			supports_reasoning INTEGER NOT NULL DEFAULT 0,
			supports_streaming INTEGER NOT NULL DEFAULT 0,
			supports_functions INTEGER NOT NULL DEFAULT 0,
			supports_vision INTEGER NOT NULL DEFAULT 0,
			max_context_window INTEGER NOT NULL,
			max_output_tokens INTEGER NOT NULL,
			cost_input_per_1k REAL NOT NULL DEFAULT 0,
			cost_output_per_1k REAL NOT NULL DEFAULT 0,
			is_available INTEGER NOT NULL DEFAULT 1,
			is_deprecated INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS runtime_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			value_type TEXT NOT NULL,
			updated_by TEXT,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runtime_config_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL,
			old_value TEXT,
			new_value TEXT,
			actor TEXT,
			changed_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_config_history_key ON runtime_config_history(key, changed_at)`,
		`CREATE TABLE IF NOT EXISTS usage_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			model_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			success INTEGER NOT NULL,
			response_time_ms INTEGER NOT NULL,
			feature TEXT,
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_events_model_time ON usage_events(model_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			message_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			rating INTEGER NOT NULL,
			helpful INTEGER,
			accuracy INTEGER,
			clarity INTEGER,
			completeness INTEGER,
			PRIMARY KEY (message_id, user_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// --- Projects ---

func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		return ErrEmptyID
	}
	now := p.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, owner_id, status, created_at, updated_at, repo_root) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, string(p.Status), now.Format(time.RFC3339), now.Format(time.RFC3339), p.RepoRoot)
	return err
}

// GetProject fetches a single project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	var status, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, status, created_at, updated_at, repo_root FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.OwnerID, &status, &createdAt, &updatedAt, &p.RepoRoot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Status = ProjectStatus(status)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

// ListProjects returns every project, used by the Embedding Worker to
// enumerate watch roots and by its GC pass to gather live chunk IDs across
// every project.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, status, created_at, updated_at, repo_root FROM projects`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		var status, createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.OwnerID, &status, &createdAt, &updatedAt, &p.RepoRoot); err != nil {
			return nil, err
		}
		p.Status = ProjectStatus(status)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProject cascades to documents, chunks, sessions, and messages via
// ON DELETE CASCADE foreign keys (enabled by sqliteutil.OpenDB).
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Documents & Chunks ---

func (s *Store) UpsertDocument(ctx context.Context, d *Document) error {
	if d.ID == "" {
		return ErrEmptyID
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, project_id, file_path, language, content_hash, is_indexed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   file_path=excluded.file_path, language=excluded.language,
		   content_hash=excluded.content_hash, is_indexed=excluded.is_indexed,
		   updated_at=excluded.updated_at`,
		d.ID, d.ProjectID, d.FilePath, d.Language, d.ContentHash, d.IsIndexed,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	return err
}

// DocumentByPath looks up a project's document by its source file path, for
// the Embedding Worker's content-hash change check. Returns ErrNotFound if
// the file has never been indexed.
func (s *Store) DocumentByPath(ctx context.Context, projectID, filePath string) (*Document, error) {
	var d Document
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, file_path, language, content_hash, is_indexed, created_at, updated_at
		 FROM documents WHERE project_id = ? AND file_path = ?`, projectID, filePath,
	).Scan(&d.ID, &d.ProjectID, &d.FilePath, &d.Language, &d.ContentHash, &d.IsIndexed, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &d, nil
}

// DeleteDocumentByPath removes a document (and its chunks, via ON DELETE
// CASCADE) by source path, used when the Embedding Worker observes a file
// removal.
func (s *Store) DeleteDocumentByPath(ctx context.Context, projectID, filePath string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE project_id = ? AND file_path = ?`, projectID, filePath)
	return err
}

// ReplaceChunks deletes all existing chunks for a document and inserts the
// given set transactionally, mirroring the ≤100-per-commit batching rule
// from spec.md §5 (callers are expected to chunk their own input into
// batches of that size; this call itself is always one transaction).
func (s *Store) ReplaceChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return err
	}

	for _, c := range chunks {
		var embeddingJSON string
		if len(c.Embedding) > 0 {
			b, err := json.Marshal(c.Embedding)
			if err != nil {
				return fmt.Errorf("marshaling embedding: %w", err)
			}
			embeddingJSON = string(b)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, document_id, content, symbol_name, symbol_type, start_line, end_line, tokens, embedding)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, documentID, c.Content, c.SymbolName, c.SymbolType, c.StartLine, c.EndLine, c.Tokens, embeddingJSON)
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	allIndexed := true
	for _, c := range chunks {
		if !c.HasEmbedding() {
			allIndexed = false
			break
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET is_indexed = ?, updated_at = ? WHERE id = ?`,
		allIndexed && len(chunks) > 0, time.Now().Format(time.RFC3339), documentID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ChunksByDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, content, symbol_name, symbol_type, start_line, end_line, tokens, embedding
		 FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// AllChunks returns every chunk belonging to a project, joined through
// documents. Used by in-process vector/lexical/structural searchers.
func (s *Store) AllChunks(ctx context.Context, projectIDs []string) ([]Chunk, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(projectIDs))
	args := make([]any, len(projectIDs))
	for i, id := range projectIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(
		`SELECT c.id, c.document_id, c.content, c.symbol_name, c.symbol_type, c.start_line, c.end_line, c.tokens, c.embedding,
		        d.file_path, d.language
		 FROM chunks c JOIN documents d ON d.id = c.document_id
		 WHERE d.project_id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunksWithDoc(rows)
}

func scanChunksWithDoc(rows *sql.Rows) ([]Chunk, error) {
	var out []Chunk
	for rows.Next() {
		var c Chunk
		var embeddingJSON sql.NullString
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.SymbolName, &c.SymbolType,
			&c.StartLine, &c.EndLine, &c.Tokens, &embeddingJSON, &c.FilePath, &c.Language); err != nil {
			return nil, err
		}
		if embeddingJSON.Valid && embeddingJSON.String != "" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &c.Embedding); err != nil {
				return nil, fmt.Errorf("unmarshaling embedding for chunk %s: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var out []Chunk
	for rows.Next() {
		var c Chunk
		var embeddingJSON sql.NullString
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.SymbolName, &c.SymbolType,
			&c.StartLine, &c.EndLine, &c.Tokens, &embeddingJSON); err != nil {
			return nil, err
		}
		if embeddingJSON.Valid && embeddingJSON.String != "" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &c.Embedding); err != nil {
				return nil, fmt.Errorf("unmarshaling embedding for chunk %s: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Model configurations (backs Model Catalog, component B) ---

func (s *Store) UpsertModelConfiguration(ctx context.Context, m ModelConfiguration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO model_configurations (model_id, provider, model_family,
			supports_reasoning, supports_streaming, supports_functions, supports_vision,
			max_context_window, max_output_tokens, cost_input_per_1k, cost_output_per_1k,
			is_available, is_deprecated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(model_id) DO UPDATE SET
		   provider=excluded.provider, model_family=excluded.model_family,
		   supports_reasoning=excluded.supports_reasoning, supports_streaming=excluded.supports_streaming,
		   supports_functions=excluded.supports_functions, supports_vision=excluded.supports_vision,
		   max_context_window=excluded.max_context_window, max_output_tokens=excluded.max_output_tokens,
		   cost_input_per_1k=excluded.cost_input_per_1k, cost_output_per_1k=excluded.cost_output_per_1k,
		   is_available=excluded.is_available, is_deprecated=excluded.is_deprecated`,
		m.ModelID, m.Provider, m.ModelFamily,
		m.SupportsReasoning, m.SupportsStreaming, m.SupportsFunctions, m.SupportsVision,
		m.MaxContextWindow, m.MaxOutputTokens, m.CostInputPer1K, m.CostOutputPer1K,
		m.IsAvailable, m.IsDeprecated)
	return err
}

func (s *Store) ListModelConfigurations(ctx context.Context) ([]ModelConfiguration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model_id, provider, model_family, supports_reasoning, supports_streaming,
			supports_functions, supports_vision, max_context_window, max_output_tokens,
			cost_input_per_1k, cost_output_per_1k, is_available, is_deprecated
		 FROM model_configurations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelConfiguration
	for rows.Next() {
		var m ModelConfiguration
		if err := rows.Scan(&m.ModelID, &m.Provider, &m.ModelFamily, &m.SupportsReasoning, &m.SupportsStreaming,
			&m.SupportsFunctions, &m.SupportsVision, &m.MaxContextWindow, &m.MaxOutputTokens,
			&m.CostInputPer1K, &m.CostOutputPer1K, &m.IsAvailable, &m.IsDeprecated); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Sessions & Messages ---

func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		return ErrEmptyID
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, project_id, title, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ProjectID, sess.Title, sess.IsActive, now.Format(time.RFC3339), now.Format(time.RFC3339))
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, title, is_active, created_at, updated_at FROM sessions WHERE id = ?`, id)
	var sess Session
	var createdAt, updatedAt string
	if err := row.Scan(&sess.ID, &sess.ProjectID, &sess.Title, &sess.IsActive, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &sess, nil
}

// AddMessage persists a message. Empty assistant content is replaced with
// the apology sentinel per spec.md §3's non-empty-content invariant.
func (s *Store) AddMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" || msg.SessionID == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(msg.Content) == "" {
		msg.Content = EmptyMessageSentinel
	}
	if msg.RAGUsed && msg.KnowledgeSourcesCount < 1 {
		return fmt.Errorf("message %s: rag_used requires knowledge_sources_count >= 1", msg.ID)
	}

	codeSnippets, err := json.Marshal(msg.CodeSnippets)
	if err != nil {
		return err
	}
	refChunks, err := json.Marshal(msg.ReferencedChunks)
	if err != nil {
		return err
	}
	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return err
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at, is_deleted,
			rag_used, rag_confidence, knowledge_sources_count, rag_status,
			code_snippets, referenced_chunks, tool_calls,
			model_used, search_results_count, applied_generation_params)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, createdAt.Format(time.RFC3339), msg.IsDeleted,
		msg.RAGUsed, msg.RAGConfidence, msg.KnowledgeSourcesCount, string(msg.RAGStatus),
		string(codeSnippets), string(refChunks), string(toolCalls),
		msg.ModelUsed, msg.SearchResultsCount, msg.AppliedGenerationParams)
	return err
}

// SoftDeleteMessage marks a message deleted without removing the row (never
// physically removed on user action, per spec.md §3).
func (s *Store) SoftDeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET is_deleted = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) MessagesBySession(ctx context.Context, sessionID string, includeDeleted bool) ([]Message, error) {
	query := `SELECT id, session_id, role, content, created_at, is_deleted,
		rag_used, rag_confidence, knowledge_sources_count, rag_status,
		code_snippets, referenced_chunks, tool_calls,
		model_used, search_results_count, applied_generation_params
		FROM messages WHERE session_id = ?`
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var createdAt string
		var ragConfidence sql.NullFloat64
		var codeSnippets, refChunks, toolCalls sql.NullString
		var role, ragStatus string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &createdAt, &m.IsDeleted,
			&m.RAGUsed, &ragConfidence, &m.KnowledgeSourcesCount, &ragStatus,
			&codeSnippets, &refChunks, &toolCalls,
			&m.ModelUsed, &m.SearchResultsCount, &m.AppliedGenerationParams); err != nil {
			return nil, err
		}
		m.Role = MessageRole(role)
		m.RAGStatus = RAGStatus(ragStatus)
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if ragConfidence.Valid {
			m.RAGConfidence = ragConfidence.Float64
		}
		if codeSnippets.Valid {
			_ = json.Unmarshal([]byte(codeSnippets.String), &m.CodeSnippets)
		}
		if refChunks.Valid {
			_ = json.Unmarshal([]byte(refChunks.String), &m.ReferencedChunks)
		}
		if toolCalls.Valid {
			_ = json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Runtime config (backs Config Store, component A) ---

func (s *Store) GetAllConfig(ctx context.Context) ([]RuntimeConfigRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, value_type, updated_by, updated_at FROM runtime_config`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RuntimeConfigRow
	for rows.Next() {
		var r RuntimeConfigRow
		var updatedAt string
		if err := rows.Scan(&r.Key, &r.Value, &r.ValueType, &r.UpdatedBy, &updatedAt); err != nil {
			return nil, err
		}
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetConfig writes a single key transactionally and appends a history row,
// per spec.md §4.A.
func (s *Store) SetConfig(ctx context.Context, key, value, valueType, actor string) error {
	now := time.Now().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var oldValue sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT value FROM runtime_config WHERE key = ?`, key).Scan(&oldValue)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runtime_config (key, value, value_type, updated_by, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, value_type=excluded.value_type,
		   updated_by=excluded.updated_by, updated_at=excluded.updated_at`,
		key, value, valueType, actor, now)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runtime_config_history (key, old_value, new_value, actor, changed_at) VALUES (?, ?, ?, ?, ?)`,
		key, oldValue.String, value, actor, now)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ConfigHistory(ctx context.Context, key string, n int) ([]RuntimeConfigHistoryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, old_value, new_value, actor, changed_at FROM runtime_config_history
		 WHERE key = ? ORDER BY changed_at DESC LIMIT ?`, key, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RuntimeConfigHistoryRow
	for rows.Next() {
		var h RuntimeConfigHistoryRow
		var changedAt string
		if err := rows.Scan(&h.Key, &h.OldValue, &h.NewValue, &h.Actor, &changedAt); err != nil {
			return nil, err
		}
		h.ChangedAt, _ = time.Parse(time.RFC3339, changedAt)
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- Usage events ---

func (s *Store) RecordUsage(ctx context.Context, e UsageEvent) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (model_id, provider, input_tokens, output_tokens, success, response_time_ms, feature, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ModelID, e.Provider, e.InputTokens, e.OutputTokens, e.Success, e.ResponseTimeMs, e.Feature, ts.Format(time.RFC3339))
	if err != nil {
		slog.Warn("failed to record usage event", "model_id", e.ModelID, "error", err)
	}
	return err
}

// --- Feedback ---

func (s *Store) UpsertFeedback(ctx context.Context, f Feedback) error {
	var helpful any
	if f.Helpful != nil {
		helpful = *f.Helpful
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (message_id, user_id, rating, helpful, accuracy, clarity, completeness)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(message_id, user_id) DO UPDATE SET
		   rating=excluded.rating, helpful=excluded.helpful,
		   accuracy=excluded.accuracy, clarity=excluded.clarity, completeness=excluded.completeness`,
		f.MessageID, f.UserID, f.Rating, helpful, f.Accuracy, f.Clarity, f.Completeness)
	return err
}

// ChunkHelpfulRate aggregates the Helpful rating of every message that cited
// chunkID via its referenced_chunks column into a helpfulness rate in
// [0,1]. n is the number of rated (helpful IS NOT NULL) citing messages; a
// zero n means no feedback exists yet for this chunk. Matching is a LIKE
// substring test against the JSON-encoded column rather than a JSON query,
// since chunk IDs are opaque tokens unlikely to collide as substrings.
func (s *Store) ChunkHelpfulRate(ctx context.Context, chunkID string) (rate float64, n int, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.helpful FROM feedback f
		 JOIN messages m ON m.id = f.message_id
		 WHERE f.helpful IS NOT NULL AND m.referenced_chunks LIKE '%' || ? || '%'`,
		chunkID)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	var helpfulCount, total int
	for rows.Next() {
		var helpful bool
		if err := rows.Scan(&helpful); err != nil {
			return 0, 0, err
		}
		total++
		if helpful {
			helpfulCount++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(helpfulCount) / float64(total), total, nil
}
