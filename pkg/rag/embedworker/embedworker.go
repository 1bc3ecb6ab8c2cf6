// Package embedworker implements the background Embedding Worker (spec.md
// §4.L/§5): a fsnotify-driven watch loop that re-chunks and re-embeds
// changed files, plus an hourly GC pass over dangling vector points.
// Grounded on the teacher's pkg/rag/strategy.VectorStore file-watcher
// (StartFileWatcher/watchLoop/addPathToWatcher), generalized from a single
// in-process strategy to a worker that watches every project's repository
// root and writes through pkg/store and pkg/rag/vectorstore.
package embedworker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentplane/ragcore/pkg/rag/chunk"
	"github.com/agentplane/ragcore/pkg/rag/embed"
	"github.com/agentplane/ragcore/pkg/rag/treesitter"
	"github.com/agentplane/ragcore/pkg/rag/vectorstore"
	"github.com/agentplane/ragcore/pkg/store"
)

// backoffSchedule is the worker's retry schedule for a failed index
// operation, per spec.md §5. The schedule resets to its first step as soon
// as a retry succeeds.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
	120 * time.Second,
}

// ignoredDirs are directory names the watcher never descends into or
// watches, mirroring common .gitignore conventions the corpus itself is
// checked out under.
var ignoredDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"vendor":       {},
	".idea":        {},
	".vscode":      {},
}

// Worker owns the file watcher, chunker, embedder, and GC loop.
type Worker struct {
	db        *store.Store
	vstore    vectorstore.Store
	embedder  *embed.Embedder
	processor *treesitter.DocumentProcessor
	chunker   *chunk.Processor

	chunkSize             int
	chunkOverlap          int
	respectWordBoundaries bool
	gcInterval            time.Duration
	debounce              time.Duration

	watcherMu sync.Mutex
	watcher   *fsnotify.Watcher
	reindexMu sync.Mutex
}

// Option configures a Worker.
type Option func(*Worker)

// WithChunking sets the chunk size/overlap/word-boundary behavior passed to
// both the syntax-aware and plain-text chunkers. Defaults: 1000/200/true.
func WithChunking(size, overlap int, respectWordBoundaries bool) Option {
	return func(w *Worker) {
		w.chunkSize = size
		w.chunkOverlap = overlap
		w.respectWordBoundaries = respectWordBoundaries
	}
}

// WithGCInterval overrides the default hourly GC pass interval.
func WithGCInterval(d time.Duration) Option {
	return func(w *Worker) { w.gcInterval = d }
}

// WithDebounce overrides the default 2s file-event debounce window.
func WithDebounce(d time.Duration) Option {
	return func(w *Worker) { w.debounce = d }
}

// New builds a Worker. embedder may be nil, in which case indexed chunks
// are persisted without embeddings (useful for lexical/structural-only
// projects, or when no Provider Adapter with embedding support is
// configured).
func New(db *store.Store, vstore vectorstore.Store, embedder *embed.Embedder, opts ...Option) *Worker {
	w := &Worker{
		db:                    db,
		vstore:                vstore,
		embedder:              embedder,
		chunkSize:             1000,
		chunkOverlap:          200,
		respectWordBoundaries: true,
		gcInterval:            time.Hour,
		debounce:              2 * time.Second,
		chunker:               chunk.New(),
	}
	w.processor = treesitter.NewDocumentProcessor(w.chunkSize, w.chunkOverlap, w.respectWordBoundaries)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run performs an initial full index pass over every project with a repo
// root, then starts the file watcher and GC loop, blocking until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) error {
	projects, err := w.db.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("embedworker: list projects: %w", err)
	}

	roots := make(map[string]string, len(projects)) // root path -> project ID
	for _, p := range projects {
		if p.RepoRoot == "" {
			continue
		}
		roots[normalizeDir(p.RepoRoot)] = p.ID
	}

	w.IndexAll(ctx, roots)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("embedworker: create file watcher: %w", err)
	}
	w.watcherMu.Lock()
	w.watcher = watcher
	w.watcherMu.Unlock()

	for root := range roots {
		if err := w.addPathToWatcher(root); err != nil {
			slog.Warn("embedworker: failed to watch project root", "root", root, "error", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); w.watchLoop(ctx, roots) }()
	go func() { defer wg.Done(); w.gcLoop(ctx) }()

	<-ctx.Done()
	w.watcherMu.Lock()
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	w.watcherMu.Unlock()
	wg.Wait()
	return nil
}

// IndexAll walks every watched root and (re-)indexes any file whose
// content hash has changed since it was last indexed, then removes
// documents for files no longer on disk. roots maps a normalized root
// directory to its owning project ID.
func (w *Worker) IndexAll(ctx context.Context, roots map[string]string) {
	for root, projectID := range roots {
		files, err := w.chunker.CollectFiles([]string{root})
		if err != nil {
			slog.Error("embedworker: collect files", "root", root, "error", err)
			continue
		}

		seen := make(map[string]struct{}, len(files))
		for _, f := range files {
			if shouldIgnore(f) {
				continue
			}
			seen[f] = struct{}{}

			changed, err := w.needsIndexing(ctx, projectID, f)
			if err != nil {
				slog.Debug("embedworker: skip unreadable file", "path", f, "error", err)
				continue
			}
			if changed {
				if err := w.indexFileWithRetry(ctx, projectID, f); err != nil {
					slog.Error("embedworker: index file", "path", f, "error", err)
				}
			}
		}

		if err := w.cleanupMissing(ctx, projectID, root, seen); err != nil {
			slog.Error("embedworker: cleanup missing documents", "root", root, "error", err)
		}
	}
}

func normalizeDir(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return filepath.Clean(abs)
}

func shouldIgnore(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if _, ok := ignoredDirs[part]; ok {
			return true
		}
	}
	return false
}
