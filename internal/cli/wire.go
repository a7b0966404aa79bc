package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/tandem/internal/cache"
	"github.com/dshills/tandem/internal/config"
	"github.com/dshills/tandem/internal/fixes"
	"github.com/dshills/tandem/internal/jobs"
	"github.com/dshills/tandem/internal/llm"
	"github.com/dshills/tandem/internal/orchestrator"
	"github.com/dshills/tandem/internal/redact"
	"github.com/dshills/tandem/internal/semantic"
	"github.com/dshills/tandem/internal/static"
	"github.com/dshills/tandem/internal/telemetry"
	"github.com/dshills/tandem/internal/workspace"
)

// pipeline is everything a run needs, assembled from config.
type pipeline struct {
	store    *jobs.Store
	orch     *orchestrator.Orchestrator
	shutdown func(context.Context) error
}

func orchestratorOptions(cfg config.Config) orchestrator.Options {
	return orchestrator.Options{
		SemanticTimeout:    cfg.Analysis.SemanticTimeout,
		StaticTimeout:      cfg.Analysis.StaticTimeout,
		MaxContextFiles:    cfg.Analysis.MaxContextFiles,
		ContextConcurrency: cfg.Analysis.ContextConcurrency,
	}
}

func buildPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pipeline, error) {
	client, err := llm.New(llm.Options{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.LLM.Timeout,
		Retry: llm.RetryPolicy{
			MaxRetries: cfg.LLM.MaxRetries,
			BaseDelay:  cfg.LLM.BaseDelay,
			MaxDelay:   cfg.LLM.MaxDelay,
		},
	})
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
		ServiceName: "tandem",
		Version:     version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	rules, err := semantic.LoadRules(cfg.Analysis.RulesFile)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	policy := redact.Policy{Secrets: cfg.Privacy.RedactSecrets, Paths: cfg.Privacy.RedactPaths}
	store := jobs.NewStore(logger)
	options := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithContextProvider(workspace.SignatureProvider{Limit: cfg.Analysis.ContextChars}),
	}

	if cfg.Fixes.Enabled {
		c, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTL)
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		gen := fixes.NewLLMGenerator(client, cfg.Model, c, policy, logger)
		options = append(options, orchestrator.WithBackfill(fixes.NewBackfiller(gen,
			fixes.WithMaxFixes(cfg.Fixes.MaxPerRun),
			fixes.WithRateLimit(cfg.Fixes.RatePerSecond, cfg.Fixes.Burst),
			fixes.WithLogger(logger),
		)))
	}

	orch, err := orchestrator.New(store,
		semantic.NewReviewer(client, policy, logger).WithRules(rules),
		static.New(cfg.Static.ServiceURL, static.WithLogger(logger)),
		orchestratorOptions(cfg),
		options...,
	)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	return &pipeline{store: store, orch: orch, shutdown: shutdown}, nil
}
