package embedworker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/agentplane/ragcore/pkg/rag/vectorstore"
	"github.com/agentplane/ragcore/pkg/store"
)

// needsIndexing reports whether filePath's content hash differs from the
// hash recorded on its Document, or whether it has never been indexed.
func (w *Worker) needsIndexing(ctx context.Context, projectID, filePath string) (bool, error) {
	hash, err := w.chunker.FileHash(filePath)
	if err != nil {
		return false, err
	}

	doc, err := w.db.DocumentByPath(ctx, projectID, filePath)
	if err != nil {
		if err == store.ErrNotFound {
			return true, nil
		}
		return false, err
	}
	return doc.ContentHash != hash, nil
}

// indexFileWithRetry runs indexFile, retrying on failure per
// backoffSchedule before giving up, per spec.md §5.
func (w *Worker) indexFileWithRetry(ctx context.Context, projectID, filePath string) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := w.indexFile(ctx, projectID, filePath); err != nil {
			lastErr = err
			if attempt >= len(backoffSchedule) {
				return fmt.Errorf("embedworker: index %s: giving up after %d attempts: %w", filePath, attempt+1, lastErr)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoffSchedule[attempt]):
			}
			continue
		}
		return nil
	}
}

// indexFile hashes, chunks, embeds, and persists a single file: it replaces
// the file's Document/Chunk rows and the corresponding vector-store points
// in one pass. A file with no extractable chunks still records its
// Document so later runs don't treat it as unindexed.
func (w *Worker) indexFile(ctx context.Context, projectID, filePath string) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	hash, err := w.chunker.FileHash(filePath)
	if err != nil {
		return fmt.Errorf("hash file: %w", err)
	}

	rawChunks, err := w.processor.Process(filePath, content)
	if err != nil {
		return fmt.Errorf("chunk file: %w", err)
	}

	existing, err := w.db.DocumentByPath(ctx, projectID, filePath)
	docID := ""
	if err == nil {
		docID = existing.ID
	} else if err == store.ErrNotFound {
		docID = uuid.New().String()
	} else {
		return fmt.Errorf("lookup document: %w", err)
	}

	doc := &store.Document{
		ID:          docID,
		ProjectID:   projectID,
		FilePath:    filePath,
		Language:    languageFromExt(filePath),
		ContentHash: hash,
		IsIndexed:   false,
	}

	var texts []string
	storeChunks := make([]store.Chunk, 0, len(rawChunks))
	for _, c := range rawChunks {
		if c.Content == "" {
			continue
		}
		texts = append(texts, c.Content)
		storeChunks = append(storeChunks, store.Chunk{
			ID:         uuid.New().String(),
			DocumentID: docID,
			Content:    c.Content,
			SymbolName: c.Metadata["symbol_name"],
			SymbolType: c.Metadata["symbol_kind"],
			StartLine:  atoiOr(c.Metadata["start_line"], 0),
			EndLine:    atoiOr(c.Metadata["end_line"], 0),
			Tokens:     estimateTokens(c.Content),
		})
	}

	if w.embedder != nil && len(texts) > 0 {
		embeddings, err := w.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		for i := range storeChunks {
			if i < len(embeddings) {
				storeChunks[i].Embedding = embeddings[i]
			}
		}
	}

	if err := w.db.UpsertDocument(ctx, doc); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	if err := w.db.ReplaceChunks(ctx, docID, storeChunks); err != nil {
		return fmt.Errorf("replace chunks: %w", err)
	}

	if w.vstore != nil {
		points := make([]vectorstore.Point, 0, len(storeChunks))
		for _, c := range storeChunks {
			if !c.HasEmbedding() {
				continue
			}
			points = append(points, vectorstore.Point{
				ChunkID:    c.ID,
				DocumentID: docID,
				ProjectID:  projectID,
				Embedding:  c.Embedding,
				FilePath:   filePath,
				Language:   doc.Language,
			})
		}
		if err := w.vstore.DeleteByDocument(ctx, docID); err != nil {
			return fmt.Errorf("clear stale vector points: %w", err)
		}
		for _, batch := range vectorstore.Batches(points) {
			if err := w.vstore.InsertEmbeddings(ctx, batch); err != nil {
				return fmt.Errorf("insert embeddings: %w", err)
			}
		}
	}

	return nil
}

// cleanupMissing deletes documents under root whose source file no longer
// exists on disk (seen does not contain them).
func (w *Worker) cleanupMissing(ctx context.Context, projectID, root string, seen map[string]struct{}) error {
	chunks, err := w.db.AllChunks(ctx, []string{projectID})
	if err != nil {
		return err
	}
	known := make(map[string]struct{})
	for _, c := range chunks {
		if c.FilePath == "" {
			continue
		}
		known[c.FilePath] = struct{}{}
	}
	for path := range known {
		if _, ok := seen[path]; ok {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			continue // still exists, just outside this pass's file list
		}
		if err := w.db.DeleteDocumentByPath(ctx, projectID, path); err != nil {
			return fmt.Errorf("delete stale document %s: %w", path, err)
		}
	}
	return nil
}

func atoiOr(s string, fallback int) int {
	n := 0
	if s == "" {
		return fallback
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// estimateTokens approximates token count at ~4 characters/token, the same
// rough heuristic the teacher's usage accounting uses when a provider
// doesn't report exact counts.
func estimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}

func languageFromExt(path string) string {
	ext := extOf(path)
	switch ext {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".md":
		return "markdown"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	default:
		return ""
	}
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' || path[i] == '\\' {
			break
		}
	}
	return ""
}
