package config

import (
	"fmt"
	"time"
)

// LLMConfig represents the configuration for the extraction providers
type LLMConfig struct {
	Provider         string
	EnabledProviders []string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// StoreConfig selects and locates the persistence backend
type StoreConfig struct {
	Type        string
	SQLitePath  string
	MySQLDSN    string
	PostgresDSN string
}

// FetcherConfig selects the email source
type FetcherConfig struct {
	Type string
	Dir  string
}

// GoogleConfig holds the OAuth client and fetch filters
type GoogleConfig struct {
	ClientID      string
	ClientSecret  string
	IgnoreSenders []string
}

// PipelineConfig holds the run defaults
type PipelineConfig struct {
	MaxResults     int
	Lookback       time.Duration
	MaxRetries     int
	SweepThreshold time.Duration
	ClaimTimeout   time.Duration
	Concurrency    int
}

// BackoffConfig holds the advisory retry delays
type BackoffConfig struct {
	Base time.Duration
	Cap  time.Duration
}

// ScheduleConfig holds the cron specs for the scheduler
type ScheduleConfig struct {
	Process string
	Retry   string
}

// NotifyConfig configures the retry exhaustion notifier
type NotifyConfig struct {
	Enabled     bool
	SMTPAddress string
	Username    string
	Password    string
	From        string
	To          []string
}

// GetLLM returns the LLM configuration. With no enabled providers listed, only
// the default provider is enabled.
func (c *Config) GetLLM() LLMConfig {
	cfg := LLMConfig{
		Provider:         c.GetString("llm.provider"),
		EnabledProviders: c.GetStringSlice("llm.enabled_providers"),
	}
	if len(cfg.EnabledProviders) == 0 {
		cfg.EnabledProviders = []string{cfg.Provider}
	}
	return cfg
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:        c.GetString("store.type"),
		SQLitePath:  c.GetString("store.sqlite_path"),
		MySQLDSN:    c.GetString("store.mysql_dsn"),
		PostgresDSN: c.GetString("store.postgres_dsn"),
	}
}

// GetFetcher returns the email source configuration
func (c *Config) GetFetcher() FetcherConfig {
	return FetcherConfig{
		Type: c.GetString("fetcher.type"),
		Dir:  c.GetString("fetcher.dir"),
	}
}

// GetGoogle returns the Google API configuration
func (c *Config) GetGoogle() GoogleConfig {
	return GoogleConfig{
		ClientID:      c.GetString("google.client_id"),
		ClientSecret:  c.GetString("google.client_secret"),
		IgnoreSenders: c.GetStringSlice("google.ignore_senders"),
	}
}

// GetPipeline returns the pipeline configuration
func (c *Config) GetPipeline() (PipelineConfig, error) {
	lookback, err := c.GetDuration("pipeline.lookback")
	if err != nil {
		return PipelineConfig{}, err
	}
	sweep, err := c.GetDuration("pipeline.sweep_threshold")
	if err != nil {
		return PipelineConfig{}, err
	}
	claim, err := c.GetDuration("pipeline.claim_timeout")
	if err != nil {
		return PipelineConfig{}, err
	}
	cfg := PipelineConfig{
		MaxResults:     c.GetInt("pipeline.max_results"),
		Lookback:       lookback,
		MaxRetries:     c.GetInt("pipeline.max_retries"),
		SweepThreshold: sweep,
		ClaimTimeout:   claim,
		Concurrency:    c.GetInt("pipeline.concurrency"),
	}
	if cfg.MaxRetries < 1 {
		return PipelineConfig{}, fmt.Errorf("pipeline.max_retries must be at least 1, got %d", cfg.MaxRetries)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg, nil
}

// GetBackoff returns the backoff configuration
func (c *Config) GetBackoff() (BackoffConfig, error) {
	base, err := c.GetDuration("backoff.base")
	if err != nil {
		return BackoffConfig{}, err
	}
	ceiling, err := c.GetDuration("backoff.cap")
	if err != nil {
		return BackoffConfig{}, err
	}
	if base <= 0 || ceiling < base {
		return BackoffConfig{}, fmt.Errorf("backoff.base must be positive and not exceed backoff.cap")
	}
	return BackoffConfig{Base: base, Cap: ceiling}, nil
}

// GetSchedule returns the scheduler configuration
func (c *Config) GetSchedule() ScheduleConfig {
	return ScheduleConfig{
		Process: c.GetString("schedule.process"),
		Retry:   c.GetString("schedule.retry"),
	}
}

// GetNotify returns the notifier configuration
func (c *Config) GetNotify() NotifyConfig {
	return NotifyConfig{
		Enabled:     c.GetBool("notify.enabled"),
		SMTPAddress: c.GetString("notify.smtp_address"),
		Username:    c.GetString("notify.username"),
		Password:    c.GetString("notify.password"),
		From:        c.GetString("notify.from"),
		To:          c.GetStringSlice("notify.to"),
	}
}
