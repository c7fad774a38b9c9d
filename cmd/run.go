package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/licitatech/match-cli/internal/cache"
	"github.com/licitatech/match-cli/internal/config"
	"github.com/licitatech/match-cli/internal/dedup"
	"github.com/licitatech/match-cli/internal/embedding"
	"github.com/licitatech/match-cli/internal/matcher"
	"github.com/licitatech/match-cli/internal/scorer"
	"github.com/licitatech/match-cli/internal/store"
	"github.com/licitatech/match-cli/internal/validator"
	"github.com/licitatech/match-cli/pkg/anthropic"
	"github.com/licitatech/match-cli/pkg/ollama"
)

var runLimit int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Match pending opportunities against the company catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		orch, err := buildPipeline(st, cfg)
		if err != nil {
			return err
		}

		opportunities, err := st.ListOpportunities(ctx, runLimit)
		if err != nil {
			return err
		}
		if len(opportunities) == 0 {
			zap.L().Info("no opportunities to match")
			return nil
		}

		result, err := orch.Run(ctx, opportunities)
		if err != nil {
			return err
		}

		zap.L().Info("run summary",
			zap.Int("opportunities", len(opportunities)),
			zap.Int("processed", len(result.Processed)),
			zap.Int("skipped", len(result.Skipped)),
			zap.Int("failed", len(result.Failed)),
			zap.Int("matches_saved", result.MatchesSaved),
			zap.Int("quality_rejected", result.QualityRejected),
			zap.Int("llm_validations", result.LLMValidations),
			zap.Int("llm_approved", result.LLMApproved),
			zap.Int("llm_rejected", result.LLMRejected),
			zap.Int("cache_hits", result.CacheHits),
			zap.Int("cache_misses", result.CacheMisses),
		)
		return nil
	},
}

// buildPipeline wires every pipeline component from configuration. Backends
// without credentials are simply not registered; the chains degrade instead
// of failing at startup.
func buildPipeline(st store.Store, cfg *config.Config) (*matcher.Orchestrator, error) {
	embCache := cache.New(st, cfg.Cache.TTL())
	tracker := dedup.New(st)

	ollamaClient := ollama.NewClient(ollama.WithBaseURL(cfg.Ollama.BaseURL))

	chain := embedding.NewChain()
	opt := embedding.ChainOption{
		RequestsPerSecond: cfg.Embedding.RequestsPerSec,
		Timeout:           time.Duration(cfg.Embedding.TimeoutSecs) * time.Second,
	}
	for _, name := range cfg.Embedding.ProviderPriority {
		switch name {
		case "openai":
			if cfg.OpenAI.Key == "" {
				zap.L().Warn("openai embedding provider skipped, no API key")
				continue
			}
			chain.Add(embedding.NewOpenAIProvider(cfg.OpenAI.Key, cfg.OpenAI.BaseURL, cfg.Embedding.ModelName), opt)
		case "ollama":
			chain.Add(embedding.NewOllamaProvider(ollamaClient, cfg.Embedding.OllamaModel), opt)
		default:
			zap.L().Warn("unknown embedding provider, skipping", zap.String("provider", name))
		}
	}
	if chain.Len() == 0 {
		return nil, eris.New("no embedding provider available, configure an API key or ollama")
	}
	resolver := embedding.NewResolver(embCache, chain)

	scorerCfg := scorer.DefaultConfig()
	scorerCfg.ThresholdPhase1 = cfg.Scoring.ThresholdPhase1
	scorerCfg.ThresholdPhase2 = cfg.Scoring.ThresholdPhase2
	scorerCfg.MinSpecificity = cfg.Scoring.MinSpecificity

	vocab := scorer.DefaultVocabulary()
	if cfg.Scoring.VocabularyFile != "" {
		v, err := scorer.LoadVocabulary(cfg.Scoring.VocabularyFile)
		if err != nil {
			return nil, err
		}
		vocab = v
	}
	sc := scorer.New(scorerCfg, vocab)

	backends := map[string]validator.Backend{
		"ollama": validator.NewOllamaBackend(ollamaClient, cfg.Ollama.GenerateModel),
	}
	if cfg.OpenAI.Key != "" {
		backends["openai"] = validator.NewOpenAIBackend(cfg.OpenAI.Key, cfg.OpenAI.BaseURL, cfg.OpenAI.ChatModel)
	}
	if cfg.Anthropic.Key != "" {
		backends["anthropic"] = validator.NewAnthropicBackend(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
	}
	val := validator.New(validator.Config{
		ScoreThreshold:  cfg.Validation.ScoreThreshold,
		MinConfidence:   cfg.Validation.LLMConfidenceThreshold,
		HeuristicBar:    cfg.Validation.HeuristicBar,
		BackendPriority: cfg.Validation.BackendPriority,
	}, backends)

	return matcher.New(st, tracker, resolver, sc, val, cfg.Batch.MaxConcurrentCompanies), nil
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "maximum opportunities to process (0 = all)")
	rootCmd.AddCommand(runCmd)
}
