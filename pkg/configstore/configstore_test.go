package configstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplane/ragcore/pkg/store"
)

func newTestConfigStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestSetManyRejectsInvalidKey(t *testing.T) {
	s := newTestConfigStore(t)
	err := s.SetMany(context.Background(), []Update{{Key: "Bad-Key", Value: `"x"`, ValueType: "string"}}, "admin")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSetManyRejectsTypeMismatch(t *testing.T) {
	s := newTestConfigStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "default_model", `"gpt-4o"`, "string", "admin"))

	err := s.Set(ctx, "default_model", "4", "number", "admin")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestGetAllUsesCacheUntilWrite(t *testing.T) {
	s := newTestConfigStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "max_tokens", "4096", "number", "admin"))

	snap1, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "max_tokens", "8192", "number", "admin"))
	snap2, err := s.GetAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, "4096", snap1["max_tokens"].Value)
	assert.Equal(t, "8192", snap2["max_tokens"].Value)
}

func TestSetManyAppendsHistoryAndNotifiesListeners(t *testing.T) {
	s := newTestConfigStore(t)
	ctx := context.Background()

	var seen []ChangeEvent
	s.OnChange(func(e ChangeEvent) { seen = append(seen, e) })

	require.NoError(t, s.Set(ctx, "default_model", `"gpt-4o"`, "string", "admin"))
	require.NoError(t, s.Set(ctx, "default_model", `"claude-sonnet"`, "string", "admin"))

	require.Len(t, seen, 2)
	assert.Equal(t, `"gpt-4o"`, seen[0].NewValue)
	assert.Equal(t, `"claude-sonnet"`, seen[1].NewValue)
	assert.Equal(t, `"gpt-4o"`, seen[1].OldValue)

	history, err := s.GetHistory(ctx, "default_model", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestGetHistoryRejectsInvalidKey(t *testing.T) {
	s := newTestConfigStore(t)
	_, err := s.GetHistory(context.Background(), "Not Valid", 10)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
