package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	Worker      WorkerConfig      `toml:"worker"`
	Collector   CollectorConfig   `toml:"collector"`
	Markets     MarketsConfig     `toml:"markets"`
	Synthesizer SynthesizerConfig `toml:"synthesizer"`
	Claude      ClaudeConfig      `toml:"claude"`
	Gemini      GeminiConfig      `toml:"gemini"`
	LLM         LLMConfig         `toml:"llm"`
	Mail        MailConfig        `toml:"mail"`
	Schedules   SchedulesConfig   `toml:"schedules"`
	Sources     []SourceEntry     `toml:"sources"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level     string   `toml:"level"`     // "debug", "info", "warn", "error"
	Output    []string `toml:"output"`    // "stdout", "file"
	Directory string   `toml:"directory"` // Log file directory; empty means logs/ beside the binary
}

// WorkerConfig controls the task polling loop.
type WorkerConfig struct {
	PollInterval  time.Duration `toml:"poll_interval"`  // How often to poll for pending tasks
	ErrorBackoff  time.Duration `toml:"error_backoff"`  // Pause after a task-level failure
	StoreBackoff  time.Duration `toml:"store_backoff"`  // Longer pause when the task store is unreachable
	BriefingLimit int           `toml:"briefing_limit"` // Max completed reports included in the daily briefing
}

// CollectorConfig controls corpus collection.
type CollectorConfig struct {
	MaxAgeHours    int           `toml:"max_age_hours" validate:"gt=0"` // Recency window for corpus documents
	MinCorpusChars int           `toml:"min_corpus_chars"`              // Minimum total characters before giving up
	MaxDocChars    int           `toml:"max_doc_chars"`                 // Per-document text bound
	LinkBudget     int           `toml:"link_budget"`                   // Candidate links per source on the crawl fallback
	RequestTimeout time.Duration `toml:"request_timeout"`               // Per-fetch HTTP timeout
	RequestDelay   time.Duration `toml:"request_delay"`                 // Minimum delay between fetches to one domain
	UserAgent      string        `toml:"user_agent"`
}

// MarketsConfig controls the financial data aggregator.
type MarketsConfig struct {
	CacheTTL        time.Duration `toml:"cache_ttl"`        // Quote cache TTL; 0 disables caching
	ProviderDelay   time.Duration `toml:"provider_delay"`   // Minimum inter-call interval per provider class
	RequestTimeout  time.Duration `toml:"request_timeout"`  // Per-call HTTP timeout
	SentimentRetry  int           `toml:"sentiment_retry"`  // Max attempts for 429-limited sentiment providers
	PricingBaseURL  string        `toml:"pricing_base_url"` // Override for tests; empty uses the default endpoint
	YieldsBaseURL   string        `toml:"yields_base_url"`
	YieldsAPIKey    string        `toml:"yields_api_key"`
	FearGreedURL    string        `toml:"fear_greed_url"`
	DominanceURL    string        `toml:"dominance_url"`
	SnapshotMaxAgeH int           `toml:"snapshot_max_age_hours"` // Freshness window for cached snapshot data
}

// SynthesizerConfig controls model request building and JSON validation.
type SynthesizerConfig struct {
	MaxCorpusChars   int    `toml:"max_corpus_chars"`   // Character ceiling for the corpus excerpt
	MaxSnapshotChars int    `toml:"max_snapshot_chars"` // Character ceiling for the snapshot excerpt
	MaxOutputTokens  int    `toml:"max_output_tokens"`  // Requested model output size
	ReasoningEffort  string `toml:"reasoning_effort"`   // "low", "medium", "high"
	StrictValidation bool   `toml:"strict_validation"`  // true: malformed output fails the task; false: safe fallback record
	MaxAttempts      int    `toml:"max_attempts"`       // Model call attempts per task
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	Timeout string `toml:"timeout"` // Operation timeout as duration string
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	Timeout string `toml:"timeout"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" validate:"oneof=claude gemini"`
}

// MailConfig contains SMTP settings for report notifications.
type MailConfig struct {
	Host       string   `toml:"host"`
	Port       int      `toml:"port"`
	Username   string   `toml:"username"`
	Password   string   `toml:"password"`
	From       string   `toml:"from"`
	FromName   string   `toml:"from_name"`
	UseTLS     bool     `toml:"use_tls"`
	Recipients []string `toml:"recipients"`
}

// SchedulesConfig holds cron expressions for the periodic routines.
type SchedulesConfig struct {
	SnapshotRefresh string `toml:"snapshot_refresh"` // Warm the quote cache
	DailyBriefing   string `toml:"daily_briefing"`   // Morning briefing email
	MonthlyReport   string `toml:"monthly_report"`   // Enqueue the monthly analysis task
}

// SourceEntry is the TOML form of a collector source descriptor.
type SourceEntry struct {
	Name            string   `toml:"name" validate:"required"`
	Domain          string   `toml:"domain" validate:"required"`
	FeedURLs        []string `toml:"feed_urls"`
	StartPages      []string `toml:"start_pages"`
	ArticlePatterns []string `toml:"article_patterns"`
	ExcludePatterns []string `toml:"exclude_patterns"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Worker: WorkerConfig{
			PollInterval:  30 * time.Second,
			ErrorBackoff:  5 * time.Second,
			StoreBackoff:  60 * time.Second,
			BriefingLimit: 5,
		},
		Collector: CollectorConfig{
			MaxAgeHours:    72,
			MinCorpusChars: 8000,
			MaxDocChars:    12000,
			LinkBudget:     10,
			RequestTimeout: 30 * time.Second,
			RequestDelay:   1 * time.Second,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Markets: MarketsConfig{
			CacheTTL:        15 * time.Minute,
			ProviderDelay:   1 * time.Second,
			RequestTimeout:  30 * time.Second,
			SentimentRetry:  3,
			SnapshotMaxAgeH: 24,
		},
		Synthesizer: SynthesizerConfig{
			MaxCorpusChars:   40000,
			MaxSnapshotChars: 6000,
			MaxOutputTokens:  8192,
			ReasoningEffort:  "medium",
			StrictValidation: false,
			MaxAttempts:      3,
		},
		Claude: ClaudeConfig{
			Model:   "claude-sonnet-4-20250514",
			Timeout: "5m",
		},
		Gemini: GeminiConfig{
			Model:   "gemini-2.5-flash",
			Timeout: "5m",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderClaude,
		},
		Mail: MailConfig{
			Port:     587,
			UseTLS:   true,
			FromName: "Speculor",
		},
		Schedules: SchedulesConfig{
			SnapshotRefresh: "0 */4 * * *",
			DailyBriefing:   "30 7 * * *",
			MonthlyReport:   "0 6 1 * *",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the loaded configuration for contract errors.
// A failure here is fatal at startup; nothing retries a bad config.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Collector.MinCorpusChars < 0 {
		return fmt.Errorf("invalid configuration: collector.min_corpus_chars must be non-negative")
	}
	if c.Synthesizer.MaxAttempts < 1 {
		return fmt.Errorf("invalid configuration: synthesizer.max_attempts must be at least 1")
	}
	if c.Markets.CacheTTL < 0 {
		return fmt.Errorf("invalid configuration: markets.cache_ttl must be non-negative")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SPECULOR_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if badgerPath := os.Getenv("SPECULOR_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("SPECULOR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SPECULOR_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if pollInterval := os.Getenv("SPECULOR_POLL_INTERVAL"); pollInterval != "" {
		if d, err := time.ParseDuration(pollInterval); err == nil {
			config.Worker.PollInterval = d
		}
	}

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("SPECULOR_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if apiKey := os.Getenv("SPECULOR_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if provider := os.Getenv("SPECULOR_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	if apiKey := os.Getenv("SPECULOR_YIELDS_API_KEY"); apiKey != "" {
		config.Markets.YieldsAPIKey = apiKey
	}

	if host := os.Getenv("SPECULOR_SMTP_HOST"); host != "" {
		config.Mail.Host = host
	}
	if port := os.Getenv("SPECULOR_SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Mail.Port = p
		}
	}
	if username := os.Getenv("SPECULOR_SMTP_USERNAME"); username != "" {
		config.Mail.Username = username
	}
	if password := os.Getenv("SPECULOR_SMTP_PASSWORD"); password != "" {
		config.Mail.Password = password
	}
}
