package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestProjectLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &Project{ID: "proj-1", OwnerID: "user-1", Status: ProjectActive}
	require.NoError(t, s.CreateProject(ctx, p))

	err := s.DeleteProject(ctx, "proj-1")
	assert.NoError(t, err)

	err = s.DeleteProject(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteProjectCascadesToDocumentsAndChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, &Project{ID: "proj-1", OwnerID: "u1", Status: ProjectActive}))
	require.NoError(t, s.UpsertDocument(ctx, &Document{ID: "doc-1", ProjectID: "proj-1", FilePath: "a.go"}))
	require.NoError(t, s.ReplaceChunks(ctx, "doc-1", []Chunk{
		{ID: "chunk-1", Content: "hello", Tokens: 1},
	}))

	require.NoError(t, s.DeleteProject(ctx, "proj-1"))

	chunks, err := s.ChunksByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestReplaceChunksMarksDocumentIndexedOnlyWhenAllEmbedded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, &Project{ID: "proj-1", OwnerID: "u1", Status: ProjectActive}))
	require.NoError(t, s.UpsertDocument(ctx, &Document{ID: "doc-1", ProjectID: "proj-1", FilePath: "a.go"}))

	require.NoError(t, s.ReplaceChunks(ctx, "doc-1", []Chunk{
		{ID: "chunk-1", Content: "no embedding yet"},
	}))

	require.NoError(t, s.ReplaceChunks(ctx, "doc-1", []Chunk{
		{ID: "chunk-2", Content: "embedded", Embedding: []float64{0.1, 0.2, 0.3}},
	}))

	chunks, err := s.ChunksByDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].HasEmbedding())
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, chunks[0].Embedding)
}

func TestAllChunksAcrossProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, &Project{ID: "proj-1", OwnerID: "u1", Status: ProjectActive}))
	require.NoError(t, s.CreateProject(ctx, &Project{ID: "proj-2", OwnerID: "u1", Status: ProjectActive}))
	require.NoError(t, s.UpsertDocument(ctx, &Document{ID: "doc-1", ProjectID: "proj-1", FilePath: "a.go"}))
	require.NoError(t, s.UpsertDocument(ctx, &Document{ID: "doc-2", ProjectID: "proj-2", FilePath: "b.go"}))
	require.NoError(t, s.ReplaceChunks(ctx, "doc-1", []Chunk{{ID: "c1", Content: "x"}}))
	require.NoError(t, s.ReplaceChunks(ctx, "doc-2", []Chunk{{ID: "c2", Content: "y"}}))

	chunks, err := s.AllChunks(ctx, []string{"proj-1"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "c1", chunks[0].ID)

	chunks, err = s.AllChunks(ctx, []string{"proj-1", "proj-2"})
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestAddMessageReplacesEmptyContentWithSentinel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, &Project{ID: "proj-1", OwnerID: "u1", Status: ProjectActive}))
	require.NoError(t, s.CreateSession(ctx, &Session{ID: "sess-1", ProjectID: "proj-1", IsActive: true}))

	require.NoError(t, s.AddMessage(ctx, &Message{
		ID:        "msg-1",
		SessionID: "sess-1",
		Role:      RoleAssistant,
		Content:   "   ",
	}))

	msgs, err := s.MessagesBySession(ctx, "sess-1", false)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, EmptyMessageSentinel, msgs[0].Content)
}

func TestAddMessageRejectsRAGUsedWithoutSources(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, &Project{ID: "proj-1", OwnerID: "u1", Status: ProjectActive}))
	require.NoError(t, s.CreateSession(ctx, &Session{ID: "sess-1", ProjectID: "proj-1", IsActive: true}))

	err := s.AddMessage(ctx, &Message{
		ID:                    "msg-1",
		SessionID:             "sess-1",
		Role:                  RoleAssistant,
		Content:               "answer",
		RAGUsed:               true,
		KnowledgeSourcesCount: 0,
	})
	assert.Error(t, err)
}

func TestSoftDeleteMessageHidesFromDefaultListing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, &Project{ID: "proj-1", OwnerID: "u1", Status: ProjectActive}))
	require.NoError(t, s.CreateSession(ctx, &Session{ID: "sess-1", ProjectID: "proj-1", IsActive: true}))
	require.NoError(t, s.AddMessage(ctx, &Message{ID: "msg-1", SessionID: "sess-1", Role: RoleUser, Content: "hi"}))

	require.NoError(t, s.SoftDeleteMessage(ctx, "msg-1"))

	msgs, err := s.MessagesBySession(ctx, "sess-1", false)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = s.MessagesBySession(ctx, "sess-1", true)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsDeleted)
}

func TestMessageToolCallsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, &Project{ID: "proj-1", OwnerID: "u1", Status: ProjectActive}))
	require.NoError(t, s.CreateSession(ctx, &Session{ID: "sess-1", ProjectID: "proj-1", IsActive: true}))

	require.NoError(t, s.AddMessage(ctx, &Message{
		ID:        "msg-1",
		SessionID: "sess-1",
		Role:      RoleAssistant,
		Content:   "used a tool",
		ToolCalls: []ToolCallRecord{
			{ID: "call-1", Name: "search_code", Arguments: `{"query":"foo"}`, Success: true},
		},
	}))

	msgs, err := s.MessagesBySession(ctx, "sess-1", false)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].ToolCalls, 1)
	assert.Equal(t, "search_code", msgs[0].ToolCalls[0].Name)
}

func TestSetConfigAppendsHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetConfig(ctx, "default_model", `"gpt-4o"`, "string", "admin"))
	require.NoError(t, s.SetConfig(ctx, "default_model", `"claude-sonnet"`, "string", "admin"))

	rows, err := s.GetAllConfig(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, `"claude-sonnet"`, rows[0].Value)

	history, err := s.ConfigHistory(ctx, "default_model", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, `"claude-sonnet"`, history[0].NewValue)
	assert.Equal(t, `"gpt-4o"`, history[0].OldValue)
}

func TestRecordUsageAndFeedback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordUsage(ctx, UsageEvent{
		ModelID:        "gpt-4o",
		Provider:       "openai",
		InputTokens:    100,
		OutputTokens:   50,
		Success:        true,
		ResponseTimeMs: 820,
		Feature:        "chat",
		Timestamp:      time.Now(),
	}))

	helpful := true
	require.NoError(t, s.UpsertFeedback(ctx, Feedback{
		MessageID: "msg-1",
		UserID:    "user-1",
		Rating:    4,
		Helpful:   &helpful,
	}))

	require.NoError(t, s.UpsertFeedback(ctx, Feedback{
		MessageID: "msg-1",
		UserID:    "user-1",
		Rating:    5,
		Helpful:   &helpful,
	}))
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
