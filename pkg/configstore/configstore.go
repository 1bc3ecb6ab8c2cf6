// Package configstore implements the Config Store: a key-value store of
// typed runtime configuration with an append-only history log and a
// TTL-cached snapshot. Grounded on the teacher's pkg/session.store.go
// transactional-write pattern, backed by pkg/store.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/agentplane/ragcore/pkg/store"
)

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ErrInvalidKey is returned by Set/SetMany when a key fails the
// ^[a-z][a-z0-9_]*$ validation rule from spec.md §3.
var ErrInvalidKey = errors.New("invalid config key")

// ErrTypeMismatch is returned when a write's declared value type diverges
// from the type already on record for that key.
var ErrTypeMismatch = errors.New("config value type mismatch")

const snapshotTTL = 300 * time.Second

// Update is one key/value/type write requested via SetMany.
type Update struct {
	Key       string
	Value     string // JSON-encoded
	ValueType string
}

// ChangeEvent is emitted for each key mutated by a Set/SetMany call.
type ChangeEvent struct {
	Key      string
	OldValue string
	NewValue string
	Actor    string
	At       time.Time
}

// Listener is notified after a successful write, once per mutated key.
type Listener func(ChangeEvent)

// Store is the Config Store component. Safe for concurrent use.
type Store struct {
	db *store.Store

	mu        sync.Mutex
	snapshot  map[string]store.RuntimeConfigRow
	cachedAt  time.Time
	listeners []Listener
}

// New wraps a persistence store with the Config Store's caching and
// validation semantics.
func New(db *store.Store) *Store {
	return &Store{db: db}
}

// OnChange registers a listener invoked synchronously after each
// successful write. Used by the Unified Config Service to invalidate the
// Model Catalog's cache on catalog-affecting writes (SPEC_FULL.md §4.B).
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// GetAll returns the full config snapshot, refreshing it from storage if
// the cached copy has exceeded its 300s TTL or none exists yet.
func (s *Store) GetAll(ctx context.Context) (map[string]store.RuntimeConfigRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot != nil && time.Since(s.cachedAt) < snapshotTTL {
		return cloneSnapshot(s.snapshot), nil
	}

	rows, err := s.db.GetAllConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading config snapshot: %w", err)
	}

	snap := make(map[string]store.RuntimeConfigRow, len(rows))
	for _, r := range rows {
		snap[r.Key] = r
	}
	s.snapshot = snap
	s.cachedAt = time.Now()
	return cloneSnapshot(snap), nil
}

// SetMany applies a batch of updates. Each key is validated and
// type-checked against the existing snapshot before anything is written;
// the whole batch either fully applies or none of it does.
func (s *Store) SetMany(ctx context.Context, updates []Update, actor string) error {
	current, err := s.GetAll(ctx)
	if err != nil {
		return err
	}

	for _, u := range updates {
		if !keyPattern.MatchString(u.Key) {
			return fmt.Errorf("%w: %q", ErrInvalidKey, u.Key)
		}
		if existing, ok := current[u.Key]; ok && existing.ValueType != u.ValueType {
			return fmt.Errorf("%w: key %q is %s, got %s", ErrTypeMismatch, u.Key, existing.ValueType, u.ValueType)
		}
	}

	var events []ChangeEvent
	for _, u := range updates {
		old := current[u.Key].Value
		if err := s.db.SetConfig(ctx, u.Key, u.Value, u.ValueType, actor); err != nil {
			return fmt.Errorf("setting key %q: %w", u.Key, err)
		}
		events = append(events, ChangeEvent{Key: u.Key, OldValue: old, NewValue: u.Value, Actor: actor, At: time.Now()})
	}

	s.invalidate()

	s.mu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()
	for _, ev := range events {
		for _, l := range listeners {
			l(ev)
		}
	}
	return nil
}

// Set is a convenience wrapper around SetMany for a single key.
func (s *Store) Set(ctx context.Context, key, value, valueType, actor string) error {
	return s.SetMany(ctx, []Update{{Key: key, Value: value, ValueType: valueType}}, actor)
}

// GetHistory returns the most recent n history rows for a key, newest first.
func (s *Store) GetHistory(ctx context.Context, key string, n int) ([]store.RuntimeConfigHistoryRow, error) {
	if !keyPattern.MatchString(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return s.db.ConfigHistory(ctx, key, n)
}

func (s *Store) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
}

func cloneSnapshot(in map[string]store.RuntimeConfigRow) map[string]store.RuntimeConfigRow {
	out := make(map[string]store.RuntimeConfigRow, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
