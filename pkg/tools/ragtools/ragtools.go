// Package ragtools builds the retriever-backed entries of the built-in
// tool registry (spec.md §3): file_search, search_commits, git_blame and
// analyze_code_quality, each a thin JSON-args wrapper around the Hybrid
// Retriever's structural dispatch. Grounded on the teacher's pattern of
// one small struct-per-tool wrapping a single domain call
// (pkg/tools/builtin/rag.go's RAG search tool).
package ragtools

import (
	"context"
	"fmt"

	"github.com/agentplane/ragcore/pkg/rag/retriever"
	"github.com/agentplane/ragcore/pkg/tools"
)

// Register adds file_search, search_commits, git_blame and
// analyze_code_quality to reg, all scoped to the given retriever and
// project IDs.
func Register(reg *tools.Registry, r *retriever.Retriever, projectIDs []string) {
	reg.Register(fileSearchTool(r, projectIDs))
	reg.Register(searchCommitsTool(r, projectIDs))
	reg.Register(gitBlameTool(r, projectIDs))
	reg.Register(analyzeCodeQualityTool(r, projectIDs))
}

type fileSearchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func fileSearchTool(r *retriever.Retriever, projectIDs []string) tools.Builtin {
	return tools.Builtin{
		Tool: tools.Tool{
			Type: "function",
			Function: &tools.FunctionDefinition{
				Name:        "file_search",
				Description: "Search the indexed codebase and documentation for content relevant to a query.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{"type": "string", "description": "Natural-language or structural (func:/class:/doc:/commit:/blame:/lint: prefixed) query."},
						"limit": map[string]any{"type": "integer", "description": "Maximum number of results (default 10)."},
					},
					"required": []string{"query"},
				},
			},
		},
		Handler: func(ctx context.Context, arguments string) tools.CallResult {
			var args fileSearchArgs
			if res := tools.DecodeArgs(arguments, &args); res != nil {
				return *res
			}
			hits, err := r.Search(ctx, args.Query, projectIDs, retriever.Filters{}, args.Limit)
			if err != nil {
				return executionError(err)
			}
			return tools.CallResult{Success: true, Data: hits}
		},
	}
}

type searchCommitsArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func searchCommitsTool(r *retriever.Retriever, projectIDs []string) tools.Builtin {
	return tools.Builtin{
		Tool: tools.Tool{
			Type: "function",
			Function: &tools.FunctionDefinition{
				Name:        "search_commits",
				Description: "Search commit history by message for commits relevant to a topic.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{"type": "string"},
						"limit": map[string]any{"type": "integer"},
					},
					"required": []string{"query"},
				},
			},
		},
		Handler: func(ctx context.Context, arguments string) tools.CallResult {
			var args searchCommitsArgs
			if res := tools.DecodeArgs(arguments, &args); res != nil {
				return *res
			}
			hits, err := r.Search(ctx, "commit:"+args.Query, projectIDs, retriever.Filters{}, args.Limit)
			if err != nil {
				return executionError(err)
			}
			return tools.CallResult{Success: true, Data: hits}
		},
	}
}

type gitBlameArgs struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

func gitBlameTool(r *retriever.Retriever, projectIDs []string) tools.Builtin {
	return tools.Builtin{
		Tool: tools.Tool{
			Type: "function",
			Function: &tools.FunctionDefinition{
				Name:        "git_blame",
				Description: "Find the commit that last modified a specific file and line.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"file": map[string]any{"type": "string"},
						"line": map[string]any{"type": "integer"},
					},
					"required": []string{"file", "line"},
				},
			},
		},
		Handler: func(ctx context.Context, arguments string) tools.CallResult {
			var args gitBlameArgs
			if res := tools.DecodeArgs(arguments, &args); res != nil {
				return *res
			}
			query := fmt.Sprintf("blame:%s:%d", args.File, args.Line)
			hits, err := r.Search(ctx, query, projectIDs, retriever.Filters{}, 1)
			if err != nil {
				return executionError(err)
			}
			return tools.CallResult{Success: true, Data: hits}
		},
	}
}

type analyzeCodeQualityArgs struct {
	Query string `json:"query,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

func analyzeCodeQualityTool(r *retriever.Retriever, projectIDs []string) tools.Builtin {
	return tools.Builtin{
		Tool: tools.Tool{
			Type: "function",
			Function: &tools.FunctionDefinition{
				Name:        "analyze_code_quality",
				Description: "Run static analysis (go vet) over the project and return diagnostics, optionally filtered to a path or message substring.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{"type": "string", "description": "Optional substring filter over file path or diagnostic message."},
						"limit": map[string]any{"type": "integer"},
					},
				},
			},
		},
		Handler: func(ctx context.Context, arguments string) tools.CallResult {
			var args analyzeCodeQualityArgs
			if res := tools.DecodeArgs(arguments, &args); res != nil {
				return *res
			}
			hits, err := r.Search(ctx, "lint:"+args.Query, projectIDs, retriever.Filters{}, args.Limit)
			if err != nil {
				return executionError(err)
			}
			return tools.CallResult{Success: true, Data: hits}
		},
	}
}

func executionError(err error) tools.CallResult {
	return tools.CallResult{
		Success:   false,
		Error:     err.Error(),
		ErrorType: tools.ErrorTypeExecutionException,
	}
}
