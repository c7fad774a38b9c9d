// Package config loads application configuration from an optional config.yaml
// and MATCH_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Ollama     OllamaConfig     `yaml:"ollama" mapstructure:"ollama"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// Path is the SQLite file location when Driver is "sqlite".
	Path string `yaml:"path" mapstructure:"path"`
}

// ScoringConfig tunes the two-phase scorer.
type ScoringConfig struct {
	ThresholdPhase1 float64 `yaml:"threshold_phase1" mapstructure:"threshold_phase1"`
	ThresholdPhase2 float64 `yaml:"threshold_phase2" mapstructure:"threshold_phase2"`
	MinSpecificity  float64 `yaml:"min_specificity" mapstructure:"min_specificity"`
	// VocabularyFile optionally replaces the shipped technical term list.
	VocabularyFile string `yaml:"vocabulary_file" mapstructure:"vocabulary_file"`
}

// ValidationConfig tunes LLM validation.
type ValidationConfig struct {
	ScoreThreshold         float64  `yaml:"score_threshold" mapstructure:"score_threshold"`
	LLMConfidenceThreshold float64  `yaml:"llm_confidence_threshold" mapstructure:"llm_confidence_threshold"`
	HeuristicBar           float64  `yaml:"heuristic_bar" mapstructure:"heuristic_bar"`
	BackendPriority        []string `yaml:"backend_priority" mapstructure:"backend_priority"`
}

// EmbeddingConfig selects embedding backends and their throttles.
type EmbeddingConfig struct {
	// ProviderPriority orders the fallback chain.
	ProviderPriority []string `yaml:"provider_priority" mapstructure:"provider_priority"`
	ModelName        string   `yaml:"model_name" mapstructure:"model_name"`
	OllamaModel      string   `yaml:"ollama_model" mapstructure:"ollama_model"`
	RequestsPerSec   float64  `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	TimeoutSecs      int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CacheConfig tunes the volatile embedding cache layer.
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds" mapstructure:"ttl_seconds"`
}

// TTL returns the volatile-layer TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	ChatModel string `yaml:"chat_model" mapstructure:"chat_model"`
}

// OllamaConfig holds local Ollama daemon settings.
type OllamaConfig struct {
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	GenerateModel string `yaml:"generate_model" mapstructure:"generate_model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// BatchConfig bounds company-scoring concurrency.
type BatchConfig struct {
	MaxConcurrentCompanies int `yaml:"max_concurrent_companies" mapstructure:"max_concurrent_companies"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "match.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("batch.max_concurrent_companies", 5)
	v.SetDefault("scoring.threshold_phase1", 0.78)
	v.SetDefault("scoring.threshold_phase2", 0.82)
	v.SetDefault("scoring.min_specificity", 0.35)
	v.SetDefault("validation.score_threshold", 0.70)
	v.SetDefault("validation.llm_confidence_threshold", 0.75)
	v.SetDefault("validation.heuristic_bar", 0.85)
	v.SetDefault("validation.backend_priority", []string{"ollama", "openai", "anthropic"})
	v.SetDefault("embedding.provider_priority", []string{"openai", "ollama"})
	v.SetDefault("embedding.model_name", "text-embedding-3-small")
	v.SetDefault("embedding.ollama_model", "nomic-embed-text")
	v.SetDefault("embedding.requests_per_sec", 5.0)
	v.SetDefault("embedding.timeout_secs", 30)
	v.SetDefault("cache.ttl_seconds", 86400)
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.generate_model", "qwen2.5:7b")
	v.SetDefault("openai.chat_model", "gpt-4o-mini")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that Load cannot express.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	if c.Batch.MaxConcurrentCompanies < 1 || c.Batch.MaxConcurrentCompanies > 50 {
		problems = append(problems, "batch.max_concurrent_companies must be between 1 and 50")
	}

	unitInterval := []struct {
		key string
		val float64
	}{
		{"scoring.threshold_phase1", c.Scoring.ThresholdPhase1},
		{"scoring.threshold_phase2", c.Scoring.ThresholdPhase2},
		{"scoring.min_specificity", c.Scoring.MinSpecificity},
		{"validation.score_threshold", c.Validation.ScoreThreshold},
		{"validation.llm_confidence_threshold", c.Validation.LLMConfidenceThreshold},
		{"validation.heuristic_bar", c.Validation.HeuristicBar},
	}
	for _, f := range unitInterval {
		if f.val < 0 || f.val > 1 {
			problems = append(problems, f.key+" must be between 0 and 1")
		}
	}

	if len(c.Embedding.ProviderPriority) == 0 {
		problems = append(problems, "embedding.provider_priority must name at least one provider")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
