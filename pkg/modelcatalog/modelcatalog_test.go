package modelcatalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplane/ragcore/pkg/store"
)

func newTestCatalog(t *testing.T) (*Catalog, *store.Store) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), db
}

func TestGetMissesThenHitsAfterUpsert(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "openai/gpt-4o")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Upsert(ctx, store.ModelConfiguration{
		ModelID: "openai/gpt-4o", Provider: "openai", SupportsReasoning: false,
		SupportsStreaming: true, SupportsFunctions: true, IsAvailable: true,
		MaxContextWindow: 128000, MaxOutputTokens: 16384,
	}))

	m, ok, err := c.Get(ctx, "openai/gpt-4o")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, m.SupportsFunctions)
}

func TestListExcludesDeprecatedByDefault(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, store.ModelConfiguration{ModelID: "a", Provider: "openai", IsAvailable: true}))
	require.NoError(t, c.Upsert(ctx, store.ModelConfiguration{ModelID: "b", Provider: "openai", IsAvailable: true, IsDeprecated: true}))

	active, err := c.List(ctx, "", false)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := c.List(ctx, "", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestByCapabilityFiltersUnavailable(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, store.ModelConfiguration{ModelID: "a", Provider: "anthropic", SupportsVision: true, IsAvailable: true}))
	require.NoError(t, c.Upsert(ctx, store.ModelConfiguration{ModelID: "b", Provider: "anthropic", SupportsVision: true, IsAvailable: false}))

	vision, err := c.ByCapability(ctx, CapabilityVision, "anthropic")
	require.NoError(t, err)
	require.Len(t, vision, 1)
	assert.Equal(t, "a", vision[0].ModelID)
}

func TestSupportsReasoningFallsBackToPatternWhenUncataloged(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	assert.True(t, c.SupportsReasoning(ctx, "openai/o3-mini"))
	assert.True(t, c.SupportsReasoning(ctx, "openai/o4-mini"))
	assert.False(t, c.SupportsReasoning(ctx, "openai/gpt-4o"))
}

func TestSupportsResponsesAPIPattern(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	assert.True(t, c.SupportsResponsesAPI(ctx, "openai/gpt-4o-2024-11-20"))
	assert.True(t, c.SupportsResponsesAPI(ctx, "openai/gpt-4.1-mini"))
	assert.True(t, c.SupportsResponsesAPI(ctx, "openai/o3"))
	assert.False(t, c.SupportsResponsesAPI(ctx, "anthropic/claude-sonnet-4-5"))
}
