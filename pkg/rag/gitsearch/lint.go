package gitsearch

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agentplane/ragcore/pkg/rag/retriever"
)

// vetDiagnostic matches a `go vet` diagnostic line: "path/file.go:12:5: message".
var vetDiagnostic = regexp.MustCompile(`^(.+\.go):(\d+):(\d+): (.+)$`)

// Linter implements retriever.Linter via `go vet`, the static analyzer
// already in every Go toolchain the corpus targets.
type Linter struct {
	resolveRepo RepoResolver
	timeout     time.Duration
}

// NewLinter builds a Linter. timeout bounds the `go vet` invocation; zero
// uses a 60 second default since vet compiles the package graph.
func NewLinter(resolveRepo RepoResolver, timeout time.Duration) *Linter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Linter{resolveRepo: resolveRepo, timeout: timeout}
}

// Lint runs `go vet ./...` against the resolved repo and returns the
// diagnostics whose message or path contains query, case-insensitively.
func (l *Linter) Lint(ctx context.Context, query string, projectIDs []string, limit int) ([]retriever.Hit, error) {
	repoRoot, err := l.resolveRepo(projectIDs)
	if err != nil {
		return nil, fmt.Errorf("gitsearch: resolve repo: %w", err)
	}
	if limit <= 0 {
		limit = 10
	}

	runCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "go", "vet", "./...")
	cmd.Dir = repoRoot
	out, _ := cmd.CombinedOutput() // go vet exits non-zero when it finds anything

	needle := strings.ToLower(strings.TrimSpace(query))
	var hits []retriever.Hit
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() && len(hits) < limit {
		m := vetDiagnostic.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		file, lineStr, col, msg := m[1], m[2], m[3], m[4]
		if needle != "" && !strings.Contains(strings.ToLower(file), needle) && !strings.Contains(strings.ToLower(msg), needle) {
			continue
		}
		line, _ := strconv.Atoi(lineStr)
		hits = append(hits, retriever.Hit{
			SearchType: retriever.SearchTypeStructural,
			Score:      1,
			DocumentID: file,
			ChunkID:    fmt.Sprintf("%s:%s:%s", file, lineStr, col),
			Content:    msg,
			FilePath:   file,
			StartLine:  line,
			EndLine:    line,
			SymbolType: "vet",
			Metadata:   map[string]string{"column": col},
		})
	}
	return hits, nil
}
