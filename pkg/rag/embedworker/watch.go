package embedworker

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// addPathToWatcher registers root and every subdirectory it contains with
// the fsnotify watcher, mirroring the teacher's recursive-directory-add
// pattern since fsnotify itself only watches a directory non-recursively.
func (w *Worker) addPathToWatcher(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.watcher.Add(filepath.Dir(root))
	}

	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if shouldIgnore(p) {
			return filepath.SkipDir
		}
		if addErr := w.watcher.Add(p); addErr != nil {
			slog.Debug("embedworker: failed to watch directory", "dir", p, "error", addErr)
		}
		return nil
	})
}

// watchLoop debounces fsnotify events per project root and re-indexes the
// files they settle on, grounded on the teacher's
// pkg/rag/strategy.VectorStore.watchLoop.
func (w *Worker) watchLoop(ctx context.Context, roots map[string]string) {
	var debounceTimer *time.Timer
	pending := make(map[string]struct{})
	var pendingMu sync.Mutex

	processChanges := func() {
		if !w.reindexMu.TryLock() {
			return // a reindex is already running; the next debounce fire will pick these up
		}
		defer w.reindexMu.Unlock()

		pendingMu.Lock()
		files := make([]string, 0, len(pending))
		for f := range pending {
			files = append(files, f)
		}
		pending = make(map[string]struct{})
		pendingMu.Unlock()

		for _, f := range files {
			projectID, ok := ownerProject(f, roots)
			if !ok {
				continue
			}
			if _, err := os.Stat(f); err != nil {
				if err := w.db.DeleteDocumentByPath(ctx, projectID, f); err != nil {
					slog.Error("embedworker: delete removed file's document", "path", f, "error", err)
				}
				continue
			}
			if err := w.indexFileWithRetry(ctx, projectID, f); err != nil {
				slog.Error("embedworker: reindex changed file", "path", f, "error", err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if shouldIgnore(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addPathToWatcher(event.Name); err != nil {
						slog.Debug("embedworker: could not watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if _, ok := ownerProject(event.Name, roots); !ok {
				continue
			}

			pendingMu.Lock()
			pending[event.Name] = struct{}{}
			pendingMu.Unlock()

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, processChanges)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("embedworker: file watcher error", "error", err)
		}
	}
}

// ownerProject returns the project ID whose root is the nearest ancestor
// of path, if any.
func ownerProject(path string, roots map[string]string) (string, bool) {
	dir := normalizeDir(path)
	for {
		if projectID, ok := roots[dir]; ok {
			return projectID, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// gcLoop runs GCDanglingPoints on an interval, sweeping vector-store points
// whose chunk has since been deleted from every project (spec.md §5).
func (w *Worker) gcLoop(ctx context.Context) {
	if w.vstore == nil {
		return
	}
	ticker := time.NewTicker(w.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runGC(ctx)
		}
	}
}

func (w *Worker) runGC(ctx context.Context) {
	projects, err := w.db.ListProjects(ctx)
	if err != nil {
		slog.Error("embedworker: gc: list projects", "error", err)
		return
	}
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	chunks, err := w.db.AllChunks(ctx, ids)
	if err != nil {
		slog.Error("embedworker: gc: list chunks", "error", err)
		return
	}
	live := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		live[c.ID] = struct{}{}
	}

	removed, err := w.vstore.GCDanglingPoints(ctx, live)
	if err != nil {
		slog.Error("embedworker: gc: sweep dangling points", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("embedworker: gc swept dangling vector points", "removed", removed)
	}
}
