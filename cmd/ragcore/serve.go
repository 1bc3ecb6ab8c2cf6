package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentplane/ragcore/pkg/assembler"
	"github.com/agentplane/ragcore/pkg/chatloop"
	"github.com/agentplane/ragcore/pkg/chatserver"
	"github.com/agentplane/ragcore/pkg/confidence"
	"github.com/agentplane/ragcore/pkg/configservice"
	"github.com/agentplane/ragcore/pkg/configstore"
	"github.com/agentplane/ragcore/pkg/model/provider"
	"github.com/agentplane/ragcore/pkg/model/provider/base"
	"github.com/agentplane/ragcore/pkg/modelcatalog"
	"github.com/agentplane/ragcore/pkg/rag/embed"
	"github.com/agentplane/ragcore/pkg/rag/embedworker"
	"github.com/agentplane/ragcore/pkg/rag/gitsearch"
	"github.com/agentplane/ragcore/pkg/rag/retriever"
	"github.com/agentplane/ragcore/pkg/rag/summarizer"
	"github.com/agentplane/ragcore/pkg/rag/vectorstore/sqlitevec"
	"github.com/agentplane/ragcore/pkg/store"
	"github.com/agentplane/ragcore/pkg/tools"
	"github.com/agentplane/ragcore/pkg/tools/ragtools"
)

type serveFlags struct {
	listenAddr      string
	sessionDB       string
	vectorDB        string
	systemPrompt    string
	gitTimeout      time.Duration
	defaultProvider string
	defaultModel    string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Long:  "Run the Chat Server: the bidirectional chat channel and config admin API, backed by the Hybrid Retriever, the Streaming Tool Loop, and a background Embedding Worker.",
		RunE:  flags.run,
	}

	cmd.Flags().StringVarP(&flags.listenAddr, "listen", "l", ":8080", "Address to listen on (host:port, unix://path, or fd://N)")
	cmd.Flags().StringVarP(&flags.sessionDB, "db", "s", "ragcore.db", "Path to the relational store database")
	cmd.Flags().StringVar(&flags.vectorDB, "vector-db", "ragcore-vectors.db", "Path to the sqlitevec vector store database")
	cmd.Flags().StringVar(&flags.systemPrompt, "system-prompt", defaultSystemPrompt, "System prompt used for every chat turn")
	cmd.Flags().DurationVar(&flags.gitTimeout, "git-timeout", 10*time.Second, "Timeout for git log/blame/grep shell-outs")
	cmd.Flags().StringVar(&flags.defaultProvider, "default-provider", "openai", "Provider used to seed the runtime config on first boot")
	cmd.Flags().StringVar(&flags.defaultModel, "default-model", "gpt-4o", "Model used to seed the runtime config on first boot")

	return cmd
}

const defaultSystemPrompt = `You are a coding assistant with access to this project's indexed source, commit history, and lint findings. Answer from retrieved context; say so when context doesn't cover the question.`

func (f *serveFlags) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(f.sessionDB)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	vstore, err := sqlitevec.Open(f.vectorDB)
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}
	if err := vstore.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}

	cfgStore := configstore.New(db)
	catalog := modelcatalog.New(db)
	if err := seedCatalog(ctx, catalog); err != nil {
		return fmt.Errorf("seeding model catalog: %w", err)
	}

	env := base.Environment(provider.OSEnvironment{})
	cfgSvc := configservice.New(cfgStore, catalog, nil)
	if err := seedRuntimeConfig(ctx, cfgSvc, f.defaultProvider, f.defaultModel); err != nil {
		return fmt.Errorf("seeding runtime config: %w", err)
	}

	resolveRepo := func(projectIDs []string) (string, error) {
		projects, err := db.ListProjects(ctx)
		if err != nil {
			return "", err
		}
		if len(projectIDs) > 0 {
			for _, p := range projects {
				if p.RepoRoot != "" && p.ID == projectIDs[0] {
					return p.RepoRoot, nil
				}
			}
		}
		for _, p := range projects {
			if p.RepoRoot != "" {
				return p.RepoRoot, nil
			}
		}
		return "", fmt.Errorf("no project has a repo_root configured")
	}
	git := gitsearch.New(gitsearch.RepoResolver(resolveRepo), f.gitTimeout)
	linter := gitsearch.NewLinter(gitsearch.RepoResolver(resolveRepo), f.gitTimeout)

	embedder, err := buildEmbedder(ctx, catalog, env)
	if err != nil {
		slog.Warn("serve: no embedding-capable model configured, semantic search disabled", "error", err)
	}

	var retrieverEmbedder retriever.Embedder
	if embedder != nil {
		retrieverEmbedder = embedder
	}
	ret := retriever.New(db, vstore, retrieverEmbedder, git, linter)

	summaryProvider, err := buildSummaryProvider(ctx, cfgSvc, env)
	if err != nil {
		slog.Warn("serve: summarizer has no provider configured, will use deterministic fallback", "error", err)
	}
	summ := summarizer.New(summaryProvider)
	asm := assembler.New(summ)

	reg := tools.NewRegistry()
	ragtools.Register(reg, ret, nil)

	scorer := confidence.New(confidence.DefaultWeights, confidence.NewStoreFeedback(db))

	resolver := chatloop.NewConfigResolver(db, cfgSvc, catalog, env, slog.Default())
	resolver.SystemPrompt = f.systemPrompt

	loop := chatloop.New(db, ret, asm, reg, scorer, resolver)

	worker := embedworker.New(db, vstore, embedder)
	go func() {
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("serve: embedding worker stopped", "error", err)
		}
	}()

	srv := chatserver.New(db, loop, cfgSvc)

	ln, err := chatserver.Listen(ctx, f.listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", f.listenAddr, err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	slog.Info("ragcore: listening", "addr", ln.Addr().String())
	if err := srv.Serve(ctx, ln); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// seedCatalog upserts a minimal Model Catalog on first boot so the Context
// Assembler has a context window to budget against even before an operator
// populates the catalog via the config admin API.
func seedCatalog(ctx context.Context, catalog *modelcatalog.Catalog) error {
	defaults := []store.ModelConfiguration{
		{ModelID: "gpt-4o", Provider: "openai", ModelFamily: "gpt-4o", SupportsStreaming: true, SupportsFunctions: true, SupportsVision: true, MaxContextWindow: 128_000, MaxOutputTokens: 16_384, IsAvailable: true},
		{ModelID: "gpt-4o-mini", Provider: "openai", ModelFamily: "gpt-4o", SupportsStreaming: true, SupportsFunctions: true, MaxContextWindow: 128_000, MaxOutputTokens: 16_384, IsAvailable: true},
		{ModelID: "text-embedding-3-small", Provider: "openai", ModelFamily: "text-embedding-3", MaxContextWindow: 8_191, IsAvailable: true},
		{ModelID: "claude-sonnet-4-5", Provider: "anthropic", ModelFamily: "claude-sonnet-4", SupportsStreaming: true, SupportsFunctions: true, SupportsVision: true, MaxContextWindow: 200_000, MaxOutputTokens: 8_192, IsAvailable: true},
	}
	for _, m := range defaults {
		existing, ok, err := catalog.Get(ctx, m.ModelID)
		if err != nil {
			return err
		}
		if ok && existing.ModelID != "" {
			continue
		}
		if err := catalog.Upsert(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// seedRuntimeConfig sets an initial active Config on first boot, per
// spec.md §4.J: get_current() otherwise returns the zero Config and no
// turn can ever resolve a Provider.
func seedRuntimeConfig(ctx context.Context, svc *configservice.Service, providerName, modelID string) error {
	current, err := svc.GetCurrent(ctx)
	if err != nil {
		return err
	}
	if current.Provider != "" {
		return nil
	}
	_, err = svc.Update(ctx, configservice.Config{
		Provider: providerName,
		ModelID:  modelID,
		Stream:   true,
	}, "startup")
	return err
}

// buildEmbedder resolves the Model Catalog's embedding-capable model (the
// only catalog family with no chat capability flags set) into a
// pkg/rag/embed.Embedder, so semantic search and the embedding worker have
// something to call.
func buildEmbedder(ctx context.Context, catalog *modelcatalog.Catalog, env base.Environment) (*embed.Embedder, error) {
	models, err := catalog.List(ctx, "", false)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		if m.ModelFamily != "text-embedding-3" {
			continue
		}
		p, err := provider.New(&base.ModelConfig{Provider: m.Provider, Model: m.ModelID}, env, slog.Default())
		if err != nil {
			return nil, err
		}
		embedderProvider, ok := p.(provider.Embedder)
		if !ok {
			return nil, fmt.Errorf("provider %s does not implement embedding", m.Provider)
		}
		return embed.New(embedderProvider, m.Provider+"/"+m.ModelID), nil
	}
	return nil, fmt.Errorf("no embedding-capable model in the catalog")
}

// buildSummaryProvider wires the Summarizer's single-shot Provider to the
// currently configured chat model's stream, via
// summarizer.StreamProvider.
func buildSummaryProvider(ctx context.Context, svc *configservice.Service, env base.Environment) (summarizer.Provider, error) {
	cfg, err := svc.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Provider == "" {
		return nil, fmt.Errorf("no runtime config configured yet")
	}
	p, err := provider.New(&base.ModelConfig{Provider: cfg.Provider, Model: cfg.ModelID}, env, slog.Default())
	if err != nil {
		return nil, err
	}
	return summarizer.StreamProvider{P: p}, nil
}
