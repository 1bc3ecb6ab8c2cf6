// Package modelcatalog implements the Model Catalog: a read-mostly registry
// of per-model capability metadata keyed by model_id, with a lightweight
// pattern-based fallback for reasoning/Responses-API eligibility when the
// catalog itself has no row for a model. Grounded on pkg/modelsdev/store.go
// (lazy-loaded, cached singleton-style data access) and pkg/modelsdev/
// types.go's field shapes, persisted through pkg/store instead of a
// models.dev JSON cache file.
package modelcatalog

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/agentplane/ragcore/pkg/store"
)

// Capability is a queryable model feature flag.
type Capability string

const (
	CapabilityReasoning Capability = "reasoning"
	CapabilityStreaming Capability = "streaming"
	CapabilityFunctions Capability = "functions"
	CapabilityVision    Capability = "vision"
)

// reasoningModelPattern matches the teacher's models.dev-derived reasoning
// family list: o1, o3, o4-mini and their dated variants.
var reasoningModelPattern = regexp.MustCompile(`^(o1|o3|o4-mini)(-.*)?$`)

// responsesAPIPattern matches model families eligible for OpenAI's
// Responses API per spec.md §4.B.
var responsesAPIPattern = regexp.MustCompile(`^(gpt-4o|gpt-4\.1|o3|o4)(-.*)?$`)

// Catalog is the Model Catalog component. Safe for concurrent use.
type Catalog struct {
	db *store.Store

	mu    sync.RWMutex
	cache map[string]store.ModelConfiguration
	ready bool
}

// New creates a Catalog backed by the given persistence store.
func New(db *store.Store) *Catalog {
	return &Catalog{db: db}
}

// Get returns the catalog entry for a model_id.
func (c *Catalog) Get(ctx context.Context, modelID string) (store.ModelConfiguration, bool, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return store.ModelConfiguration{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.cache[modelID]
	return m, ok, nil
}

// List returns catalog entries, optionally filtered by provider, sorted by
// model_id. Deprecated entries are excluded unless includeDeprecated is true.
func (c *Catalog) List(ctx context.Context, provider string, includeDeprecated bool) ([]store.ModelConfiguration, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]store.ModelConfiguration, 0, len(c.cache))
	for _, m := range c.cache {
		if provider != "" && m.Provider != provider {
			continue
		}
		if m.IsDeprecated && !includeDeprecated {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out, nil
}

// ByCapability returns every available, non-deprecated model exposing the
// given capability, optionally scoped to one provider.
func (c *Catalog) ByCapability(ctx context.Context, cap Capability, provider string) ([]store.ModelConfiguration, error) {
	models, err := c.List(ctx, provider, false)
	if err != nil {
		return nil, err
	}
	out := make([]store.ModelConfiguration, 0, len(models))
	for _, m := range models {
		if !m.IsAvailable {
			continue
		}
		if hasCapability(m, cap) {
			out = append(out, m)
		}
	}
	return out, nil
}

func hasCapability(m store.ModelConfiguration, cap Capability) bool {
	switch cap {
	case CapabilityReasoning:
		return m.SupportsReasoning
	case CapabilityStreaming:
		return m.SupportsStreaming
	case CapabilityFunctions:
		return m.SupportsFunctions
	case CapabilityVision:
		return m.SupportsVision
	default:
		return false
	}
}

// Upsert writes a catalog entry and invalidates the in-memory cache so the
// next Get/List/ByCapability call re-reads it. Mirrors the background
// cache-invalidation hook spec.md §4.B requires on catalog writes.
func (c *Catalog) Upsert(ctx context.Context, m store.ModelConfiguration) error {
	if err := c.db.UpsertModelConfiguration(ctx, m); err != nil {
		return fmt.Errorf("upserting model configuration %s: %w", m.ModelID, err)
	}
	c.mu.Lock()
	c.ready = false
	c.cache = nil
	c.mu.Unlock()
	return nil
}

func (c *Catalog) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	ready := c.ready
	c.mu.RUnlock()
	if ready {
		return nil
	}

	rows, err := c.db.ListModelConfigurations(ctx)
	if err != nil {
		return fmt.Errorf("loading model catalog: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]store.ModelConfiguration, len(rows))
	for _, m := range rows {
		c.cache[m.ModelID] = m
	}
	c.ready = true
	return nil
}

// SupportsReasoning reports whether modelID supports extended reasoning.
// Falls back to the fail-open pattern heuristic from spec.md §4.B
// ({o1,o3,o4-mini} => reasoning) when the catalog has no row for modelID,
// matching pkg/modelsdev/store.go's ModelSupportsReasoning fail-open style.
func (c *Catalog) SupportsReasoning(ctx context.Context, modelID string) bool {
	if m, ok, err := c.Get(ctx, modelID); err == nil && ok {
		return m.SupportsReasoning
	}
	return reasoningModelPattern.MatchString(bareModelID(modelID))
}

// SupportsResponsesAPI reports whether modelID is eligible for OpenAI's
// Responses API, falling back to the same family-pattern heuristic when the
// catalog lookup misses.
func (c *Catalog) SupportsResponsesAPI(ctx context.Context, modelID string) bool {
	return responsesAPIPattern.MatchString(bareModelID(modelID))
}

// bareModelID strips a leading "provider/" prefix, if present.
func bareModelID(modelID string) string {
	if _, after, ok := strings.Cut(modelID, "/"); ok {
		return after
	}
	return modelID
}
