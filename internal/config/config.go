package config

import (
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
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Crunchbase CrunchbaseConfig `yaml:"crunchbase" mapstructure:"crunchbase"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Insight    InsightConfig    `yaml:"insight" mapstructure:"insight"`
	Gate       GateConfig       `yaml:"gate" mapstructure:"gate"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LLMConfig selects the completion provider and response caching.
type LLMConfig struct {
	Provider     string  `yaml:"provider" mapstructure:"provider"`
	Temperature  float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens    int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheEnabled bool    `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CacheSize    int     `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLSecs int     `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// CrunchbaseConfig holds the RapidAPI Crunchbase credentials.
type CrunchbaseConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Host    string `yaml:"host" mapstructure:"host"`
}

// PricingConfig holds per-model token pricing used for cost attribution.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    map[string]ModelPricing `yaml:"gemini" mapstructure:"gemini"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// ScrapeConfig configures the rate-limited fetcher shared by the source adapters.
type ScrapeConfig struct {
	MaxConcurrentRequests int    `yaml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`
	RequestTimeoutSecs    int    `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	RateLimitDelayMs      int    `yaml:"rate_limit_delay_ms" mapstructure:"rate_limit_delay_ms"`
	MaxAttempts           int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	UserAgent             string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes          int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// RequestTimeout returns the per-request timeout.
func (s ScrapeConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

// RateLimitDelay returns the minimum delay between request starts.
func (s ScrapeConfig) RateLimitDelay() time.Duration {
	return time.Duration(s.RateLimitDelayMs) * time.Millisecond
}

// AnalysisConfig configures the competitor analysis pipeline.
type AnalysisConfig struct {
	MinCompetitors         int `yaml:"min_competitors" mapstructure:"min_competitors"`
	MaxCompetitors         int `yaml:"max_competitors" mapstructure:"max_competitors"`
	DiscoveryTimeoutSecs   int `yaml:"discovery_timeout_secs" mapstructure:"discovery_timeout_secs"`
	EstimationTimeoutSecs  int `yaml:"estimation_timeout_secs" mapstructure:"estimation_timeout_secs"`
	AnalysisTimeoutSecs    int `yaml:"analysis_timeout_secs" mapstructure:"analysis_timeout_secs"`
	ReportTimeoutSecs      int `yaml:"report_timeout_secs" mapstructure:"report_timeout_secs"`
	MaxPositioningInsights int `yaml:"max_positioning_insights" mapstructure:"max_positioning_insights"`
	RunTimeoutSecs         int `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
}

// InsightConfig configures insight scoring.
type InsightConfig struct {
	RecencyHalfLifeDays float64        `yaml:"recency_half_life_days" mapstructure:"recency_half_life_days"`
	Weights             ScoringWeights `yaml:"weights" mapstructure:"weights"`
}

// ScoringWeights are the per-factor weights of the confidence score.
type ScoringWeights struct {
	Frequency   float64 `yaml:"frequency" mapstructure:"frequency"`
	Intensity   float64 `yaml:"intensity" mapstructure:"intensity"`
	Specificity float64 `yaml:"specificity" mapstructure:"specificity"`
	Consistency float64 `yaml:"consistency" mapstructure:"consistency"`
	Evidence    float64 `yaml:"evidence" mapstructure:"evidence"`
	Recency     float64 `yaml:"recency" mapstructure:"recency"`
}

// GateConfig configures the business model canvas update gate.
type GateConfig struct {
	PolicyPath string `yaml:"policy_path" mapstructure:"policy_path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	// SyncTimeoutSecs bounds ?mode=sync analysis requests.
	SyncTimeoutSecs int `yaml:"sync_timeout_secs" mapstructure:"sync_timeout_secs"`
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
	v.SetEnvPrefix("CLUVO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "cluvo.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.sync_timeout_secs", 900)

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout_secs", 60)
	v.SetDefault("llm.cache_enabled", true)
	v.SetDefault("llm.cache_size", 512)
	v.SetDefault("llm.cache_ttl_secs", 3600)
	// Secrets have empty defaults so AutomaticEnv can bind them on Unmarshal.
	for _, k := range []string{"anthropic.key", "gemini.key", "perplexity.key", "jina.key", "crunchbase.key", "gate.policy_path"} {
		v.SetDefault(k, "")
	}
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("crunchbase.base_url", "https://crunchbase4.p.rapidapi.com")
	v.SetDefault("crunchbase.host", "crunchbase4.p.rapidapi.com")

	v.SetDefault("scrape.max_concurrent_requests", 5)
	v.SetDefault("scrape.request_timeout_secs", 15)
	v.SetDefault("scrape.rate_limit_delay_ms", 1000)
	v.SetDefault("scrape.max_attempts", 2)
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (compatible; cluvo/1.0)")
	v.SetDefault("scrape.max_body_bytes", 2<<20)

	v.SetDefault("analysis.min_competitors", 3)
	v.SetDefault("analysis.max_competitors", 5)
	v.SetDefault("analysis.discovery_timeout_secs", 90)
	v.SetDefault("analysis.estimation_timeout_secs", 60)
	v.SetDefault("analysis.analysis_timeout_secs", 120)
	v.SetDefault("analysis.report_timeout_secs", 60)
	v.SetDefault("analysis.max_positioning_insights", 5)
	v.SetDefault("analysis.run_timeout_secs", 600)

	v.SetDefault("insight.recency_half_life_days", 90)
	v.SetDefault("insight.weights.frequency", 0.25)
	v.SetDefault("insight.weights.intensity", 0.20)
	v.SetDefault("insight.weights.specificity", 0.15)
	v.SetDefault("insight.weights.consistency", 0.15)
	v.SetDefault("insight.weights.evidence", 0.15)
	v.SetDefault("insight.weights.recency", 0.10)
}

// Validate checks that the keys required by the given command mode are set.
// Modes: "analysis", "interview", "serve".
func (c *Config) Validate(mode string) error {
	var missing []string

	needLLM := mode == "analysis" || mode == "interview" || mode == "serve"
	if needLLM {
		switch c.LLM.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				missing = append(missing, "anthropic.key")
			}
		case "gemini":
			if c.Gemini.Key == "" {
				missing = append(missing, "gemini.key")
			}
		default:
			return eris.Errorf("config: unknown llm.provider %q", c.LLM.Provider)
		}
	}

	if mode == "serve" || mode == "interview" {
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url")
		}
	}

	if c.Analysis.MinCompetitors < 1 || c.Analysis.MaxCompetitors < c.Analysis.MinCompetitors {
		return eris.Errorf("config: invalid competitor bounds min=%d max=%d",
			c.Analysis.MinCompetitors, c.Analysis.MaxCompetitors)
	}
	if c.Scrape.MaxConcurrentRequests < 1 {
		return eris.New("config: scrape.max_concurrent_requests must be positive")
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required keys for %s: %s", mode, strings.Join(missing, ", "))
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
