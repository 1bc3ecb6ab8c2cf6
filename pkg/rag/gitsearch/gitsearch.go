// Package gitsearch implements the commit:/blame: structural dispatch
// targets of the Hybrid Retriever (spec.md §4.E) by shelling out to the
// system git binary, grounded on the teacher's exec.CommandContext
// shell-out style (pkg/evaluation/containers.go).
package gitsearch

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/agentplane/ragcore/pkg/rag/retriever"
)

// RepoResolver maps a retrieval request's project IDs to the local
// filesystem path of the git repository to search. retriever.GitSearcher's
// SearchCommits/Blame methods carry no project scope (spec.md §4.E's
// dispatch signature), so in practice a Searcher is wired per active
// project/session (cmd/ragcore passes a resolver closed over the current
// project's store.Project.RepoRoot) and projectIDs is unused by
// SearchCommits/Blame (called with nil); Lint receives it directly and
// passes it through.
type RepoResolver func(projectIDs []string) (string, error)

// Searcher implements retriever.GitSearcher via `git log`/`git blame`.
type Searcher struct {
	resolveRepo RepoResolver
	timeout     time.Duration
}

// New builds a Searcher. timeout bounds every git invocation; zero uses a
// 10 second default.
func New(resolveRepo RepoResolver, timeout time.Duration) *Searcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Searcher{resolveRepo: resolveRepo, timeout: timeout}
}

// SearchCommits runs `git log --grep` across subject and body, returning
// one Hit per matching commit.
func (s *Searcher) SearchCommits(ctx context.Context, query string, limit int) ([]retriever.Hit, error) {
	repoRoot, err := s.resolveRepo(nil)
	if err != nil {
		return nil, fmt.Errorf("gitsearch: resolve repo: %w", err)
	}
	if limit <= 0 {
		limit = 10
	}

	const sep = "\x1f"
	format := strings.Join([]string{"%H", "%an", "%ad", "%s"}, sep)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", "-C", repoRoot, "log",
		"--regexp-ignore-case",
		"--grep", query,
		"-n", strconv.Itoa(limit),
		"--date=short",
		"--pretty=format:"+format,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("gitsearch: git log: %w", err)
	}

	var hits []retriever.Hit
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, sep, 4)
		if len(fields) != 4 {
			continue
		}
		hash, author, date, subject := fields[0], fields[1], fields[2], fields[3]
		hits = append(hits, retriever.Hit{
			SearchType: retriever.SearchTypeStructural,
			Score:      1,
			DocumentID: hash,
			ChunkID:    hash,
			Content:    subject,
			SymbolName: hash[:min(12, len(hash))],
			SymbolType: "commit",
			Metadata: map[string]string{
				"author": author,
				"date":   date,
			},
		})
	}
	return hits, nil
}

// Blame runs `git blame` for a single line and returns the commit that last
// touched it.
func (s *Searcher) Blame(ctx context.Context, file string, line int) ([]retriever.Hit, error) {
	repoRoot, err := s.resolveRepo(nil)
	if err != nil {
		return nil, fmt.Errorf("gitsearch: resolve repo: %w", err)
	}
	if line <= 0 {
		return nil, fmt.Errorf("gitsearch: blame requires a positive line number, got %d", line)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	lineRange := fmt.Sprintf("%d,%d", line, line)
	cmd := exec.CommandContext(runCtx, "git", "-C", repoRoot, "blame",
		"-L", lineRange,
		"--porcelain",
		"--", file,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("gitsearch: git blame: %w", err)
	}

	hash, author, summary := parseBlamePorcelain(string(out))
	if hash == "" {
		return nil, nil
	}

	return []retriever.Hit{{
		SearchType: retriever.SearchTypeStructural,
		Score:      1,
		DocumentID: hash,
		ChunkID:    fmt.Sprintf("%s:%d", file, line),
		Content:    summary,
		FilePath:   file,
		StartLine:  line,
		EndLine:    line,
		SymbolName: hash[:min(12, len(hash))],
		SymbolType: "blame",
		Metadata:   map[string]string{"author": author},
	}}, nil
}

// parseBlamePorcelain extracts the commit hash, author and summary from the
// first entry of `git blame --porcelain` output.
func parseBlamePorcelain(out string) (hash, author, summary string) {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case hash == "" && looksLikeHashLine(line):
			hash = strings.Fields(line)[0]
		case strings.HasPrefix(line, "author "):
			author = strings.TrimPrefix(line, "author ")
		case strings.HasPrefix(line, "summary "):
			summary = strings.TrimPrefix(line, "summary ")
			return hash, author, summary
		}
	}
	return hash, author, summary
}

func looksLikeHashLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return false
	}
	for _, c := range fields[0] {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return len(fields[0]) == 40
}
