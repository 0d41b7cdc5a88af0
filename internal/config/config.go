package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Connector  ConnectorConfig  `yaml:"connector" mapstructure:"connector"`
	LinkedIn   LinkedInConfig   `yaml:"linkedin" mapstructure:"linkedin"`
	Reddit     RedditConfig     `yaml:"reddit" mapstructure:"reddit"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Ollama     OllamaConfig     `yaml:"ollama" mapstructure:"ollama"`
	Classify   ClassifyConfig   `yaml:"classify" mapstructure:"classify"`
	Outreach   OutreachConfig   `yaml:"outreach" mapstructure:"outreach"`
	Budget     BudgetConfig     `yaml:"budget" mapstructure:"budget"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" mapstructure:"checkpoint"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Taxonomy   TaxonomyConfig   `yaml:"taxonomy" mapstructure:"taxonomy"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SearchConfig is the harvest request.
type SearchConfig struct {
	Query  string `yaml:"query" mapstructure:"query"`
	Limit  int    `yaml:"limit" mapstructure:"limit"`
	Source string `yaml:"source" mapstructure:"source"`
}

// ConnectorConfig controls pacing and paging for every source connector.
type ConnectorConfig struct {
	PacingMinMs      int    `yaml:"pacing_min_ms" mapstructure:"pacing_min_ms"`
	PacingMaxMs      int    `yaml:"pacing_max_ms" mapstructure:"pacing_max_ms"`
	MaxPages         int    `yaml:"max_pages" mapstructure:"max_pages"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int    `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// LinkedInConfig holds the session connector settings. Password is only a
// fallback for the OS keychain.
type LinkedInConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Email    string `yaml:"email" mapstructure:"email"`
	Password string `yaml:"password" mapstructure:"password"`
}

// RedditConfig holds the public search API settings.
type RedditConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Sort    string `yaml:"sort" mapstructure:"sort"`
}

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// LLMConfig selects the model provider used for classification and message
// generation.
type LLMConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	ClassifyModel string `yaml:"classify_model" mapstructure:"classify_model"`
	GenerateModel string `yaml:"generate_model" mapstructure:"generate_model"`
}

// OpenAIConfig holds settings for OpenAI and services exposing its chat
// completions API. Gemini works through its OpenAI-compatible base URL.
type OpenAIConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	ClassifyModel string `yaml:"classify_model" mapstructure:"classify_model"`
	GenerateModel string `yaml:"generate_model" mapstructure:"generate_model"`
}

// OllamaConfig holds local Ollama server settings.
type OllamaConfig struct {
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	NumCtx        int    `yaml:"num_ctx" mapstructure:"num_ctx"`
	ClassifyModel string `yaml:"classify_model" mapstructure:"classify_model"`
	GenerateModel string `yaml:"generate_model" mapstructure:"generate_model"`
}

// Provider returns the configured provider, anthropic when unset.
func (c *Config) Provider() string {
	if c.LLM.Provider == "" {
		return ProviderAnthropic
	}
	return strings.ToLower(c.LLM.Provider)
}

// Models returns the classification and generation models of the selected
// provider.
func (c *Config) Models() (classify, generate string) {
	switch c.Provider() {
	case ProviderOpenAI:
		return c.OpenAI.ClassifyModel, c.OpenAI.GenerateModel
	case ProviderOllama:
		return c.Ollama.ClassifyModel, c.Ollama.GenerateModel
	default:
		return c.Anthropic.ClassifyModel, c.Anthropic.GenerateModel
	}
}

// ClassifyConfig controls the classification orchestrator.
type ClassifyConfig struct {
	Concurrency        int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSec         float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxTokens          int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs   int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs       int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	RequestTimeoutSecs int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	CircuitThreshold   int     `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitResetSecs   int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// OutreachConfig controls message generation.
type OutreachConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Generator string `yaml:"generator" mapstructure:"generator"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// BudgetConfig caps spending on the metered classification service.
type BudgetConfig struct {
	CeilingUSD float64 `yaml:"ceiling_usd" mapstructure:"ceiling_usd"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Dir         string `yaml:"dir" mapstructure:"dir"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	DedupScope  string `yaml:"dedup_scope" mapstructure:"dedup_scope"`
}

// OutputConfig configures the bundled JSON sink.
type OutputConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PricingConfig holds per-model pricing overrides, grouped by provider.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    map[string]ModelPricing `yaml:"openai" mapstructure:"openai"`
	Ollama    map[string]ModelPricing `yaml:"ollama" mapstructure:"ollama"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// TaxonomyConfig points at the taxonomy file. Inline values are used when
// File is empty.
type TaxonomyConfig struct {
	File           string `yaml:"file" mapstructure:"file"`
	model.Taxonomy `yaml:",inline" mapstructure:",squash"`
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
	v.SetEnvPrefix("VIBEMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("search.limit", 50)
	v.SetDefault("search.source", string(model.SourceLinkedIn))
	v.SetDefault("connector.pacing_min_ms", 3000)
	v.SetDefault("connector.pacing_max_ms", 8000)
	v.SetDefault("connector.max_pages", 10)
	v.SetDefault("connector.timeout_secs", 30)
	v.SetDefault("connector.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("connector.max_attempts", 3)
	v.SetDefault("connector.initial_backoff_ms", 2000)
	v.SetDefault("connector.max_backoff_ms", 60000)
	v.SetDefault("linkedin.base_url", "https://www.linkedin.com")
	v.SetDefault("linkedin.email", "")
	v.SetDefault("linkedin.password", "")
	v.SetDefault("reddit.base_url", "https://www.reddit.com")
	v.SetDefault("reddit.sort", "new")
	v.SetDefault("llm.provider", ProviderAnthropic)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.classify_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.generate_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.classify_model", "gpt-4o-mini")
	v.SetDefault("openai.generate_model", "gpt-4o")
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.num_ctx", 8192)
	v.SetDefault("ollama.classify_model", "llama3.1")
	v.SetDefault("ollama.generate_model", "llama3.1")
	v.SetDefault("classify.concurrency", 4)
	v.SetDefault("classify.rate_per_sec", 0)
	v.SetDefault("classify.max_tokens", 1024)
	v.SetDefault("classify.max_attempts", 3)
	v.SetDefault("classify.initial_backoff_ms", 500)
	v.SetDefault("classify.max_backoff_ms", 30000)
	v.SetDefault("classify.request_timeout_secs", 60)
	v.SetDefault("classify.circuit_threshold", 5)
	v.SetDefault("classify.circuit_reset_secs", 30)
	v.SetDefault("outreach.enabled", true)
	v.SetDefault("outreach.generator", "llm")
	v.SetDefault("outreach.max_tokens", 512)
	v.SetDefault("budget.ceiling_usd", 5.0)
	v.SetDefault("checkpoint.driver", "file")
	v.SetDefault("checkpoint.dir", ".vibemarket/checkpoints")
	v.SetDefault("checkpoint.database_url", "")
	v.SetDefault("checkpoint.dedup_scope", "all")
	v.SetDefault("output.path", "leads.json")
	v.SetDefault("taxonomy.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

// Validate checks the settings the given command mode cannot start without.
// Modes: "run" (harvest + classify), "resume", "import".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
		if strings.TrimSpace(c.Search.Query) == "" && c.Search.Source != string(model.SourceManual) {
			errs = append(errs, "search.query is required")
		}
		if c.Search.Limit <= 0 {
			errs = append(errs, "search.limit must be > 0")
		}
		switch model.Source(c.Search.Source) {
		case model.SourceLinkedIn, model.SourceReddit, model.SourceManual:
		default:
			errs = append(errs, fmt.Sprintf("unknown search.source %q", c.Search.Source))
		}
		if c.Connector.PacingMaxMs < c.Connector.PacingMinMs {
			errs = append(errs, "connector.pacing_max_ms must be >= pacing_min_ms")
		}
	case "resume", "import":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Provider() {
	case ProviderAnthropic:
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case ProviderOpenAI:
		if c.OpenAI.Key == "" {
			errs = append(errs, "openai.key is required")
		}
	case ProviderOllama:
	default:
		errs = append(errs, fmt.Sprintf("unknown llm.provider %q", c.LLM.Provider))
	}
	if classifyModel, _ := c.Models(); classifyModel == "" {
		errs = append(errs, c.Provider()+".classify_model is required")
	}
	if c.Classify.Concurrency < 1 || c.Classify.Concurrency > 32 {
		errs = append(errs, "classify.concurrency must be between 1 and 32")
	}
	if c.Budget.CeilingUSD < 0 {
		errs = append(errs, "budget.ceiling_usd must be >= 0")
	}
	switch c.Checkpoint.Driver {
	case "file", "sqlite":
	case "postgres":
		if c.Checkpoint.DatabaseURL == "" {
			errs = append(errs, "checkpoint.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown checkpoint.driver %q", c.Checkpoint.Driver))
	}
	if c.Checkpoint.DedupScope != "all" && c.Checkpoint.DedupScope != "run" {
		errs = append(errs, fmt.Sprintf("unknown checkpoint.dedup_scope %q", c.Checkpoint.DedupScope))
	}
	if c.Outreach.Generator != "llm" && c.Outreach.Generator != "template" {
		errs = append(errs, fmt.Sprintf("unknown outreach.generator %q", c.Outreach.Generator))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadTaxonomy returns the taxonomy from taxonomy.file when set, else the
// inline taxonomy block.
func (c *Config) LoadTaxonomy() (model.Taxonomy, error) {
	if c.Taxonomy.File == "" {
		return c.Taxonomy.Taxonomy, nil
	}
	data, err := os.ReadFile(c.Taxonomy.File)
	if err != nil {
		return model.Taxonomy{}, eris.Wrapf(err, "config: read taxonomy %s", c.Taxonomy.File)
	}
	var t model.Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return model.Taxonomy{}, eris.Wrapf(err, "config: parse taxonomy %s", c.Taxonomy.File)
	}
	return t, nil
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
