package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment" yaml:"environment"` // "development" or "production"
	Storage     StorageConfig  `toml:"storage" yaml:"storage"`
	Logging     LoggingConfig  `toml:"logging" yaml:"logging"`
	Matching    MatchingConfig `toml:"matching" yaml:"matching"`
	Gemini      GeminiConfig   `toml:"gemini" yaml:"gemini"`
	Claude      ClaudeConfig   `toml:"claude" yaml:"claude"`
	LLM         LLMConfig      `toml:"llm" yaml:"llm"`
	Schedule    ScheduleConfig `toml:"schedule" yaml:"schedule"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger" yaml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" yaml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup" yaml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" yaml:"level"`             // "debug", "info", "warn", "error"
	Output     []string `toml:"output" yaml:"output"`           // "stdout", "file"
	TimeFormat string   `toml:"time_format" yaml:"time_format"` // Time format for logs
}

// CollectionsConfig names the four logical document collections. All four
// keys are required; the engine refuses to start otherwise.
type CollectionsConfig struct {
	JobPostings string `toml:"job_postings" yaml:"job_postings" validate:"required"`
	Resumes     string `toml:"resumes" yaml:"resumes" validate:"required"`
	Matches     string `toml:"matches" yaml:"matches" validate:"required"`
	Unmatched   string `toml:"unmatched" yaml:"unmatched" validate:"required"`
}

// MatchingConfig is the immutable per-run configuration of the matching
// engine. Durations are duration strings ("30s", "5m") parsed by the
// accessor methods; Validate checks them up front.
type MatchingConfig struct {
	DBName      string            `toml:"db_name" yaml:"db_name" validate:"required"`
	Collections CollectionsConfig `toml:"collections" yaml:"collections"`

	// Recall filters
	IndustryPrefixes []string `toml:"industry_prefixes" yaml:"industry_prefixes"`
	SearchTerms      []string `toml:"search_terms" yaml:"search_terms"`
	MaxJobs          int      `toml:"max_jobs" yaml:"max_jobs" validate:"gte=0"` // 0 = all eligible

	// Thresholds
	TopK                int     `toml:"top_k" yaml:"top_k" validate:"gt=0"`
	SimilarityThreshold float64 `toml:"similarity_threshold" yaml:"similarity_threshold" validate:"gte=0,lte=1"`
	ValidationThreshold int     `toml:"validation_threshold" yaml:"validation_threshold" validate:"gte=0,lte=100"`

	// LLM
	LLMModel      string `toml:"llm_model" yaml:"llm_model" validate:"required"`
	PromptVersion string `toml:"prompt_version" yaml:"prompt_version"`
	LLMTimeout    string `toml:"llm_timeout" yaml:"llm_timeout"`

	// Retry policy for transient external failures
	RetryAttempts int    `toml:"retry_attempts" yaml:"retry_attempts" validate:"gte=0"`
	RetryDelay    string `toml:"retry_delay" yaml:"retry_delay"`
	MaxRetryDelay string `toml:"max_retry_delay" yaml:"max_retry_delay"`

	// Batch execution
	BatchSize          int `toml:"batch_size" yaml:"batch_size" validate:"gt=0"`
	MaxWorkers         int `toml:"max_workers" yaml:"max_workers" validate:"gt=0"`
	CheckpointInterval int `toml:"checkpoint_interval" yaml:"checkpoint_interval" validate:"gt=0"`
	MemoryLimitMB      int `toml:"memory_limit_mb" yaml:"memory_limit_mb" validate:"gt=0"`

	// Cache
	CacheTTL string `toml:"cache_ttl" yaml:"cache_ttl"`

	// Vector search
	VectorSearchTimeout string `toml:"vector_search_timeout" yaml:"vector_search_timeout"`
	VectorIndexName     string `toml:"vector_index_name" yaml:"vector_index_name"`
	EmbeddingPath       string `toml:"embedding_path" yaml:"embedding_path"`
	ScoreNormalization  string `toml:"score_normalization" yaml:"score_normalization" validate:"oneof=clamp sigmoid"`

	// Duplicate-processing policy
	SkipProcessedJobs bool `toml:"skip_processed_jobs" yaml:"skip_processed_jobs"`
	ForceReprocess    bool `toml:"force_reprocess" yaml:"force_reprocess"`

	// Checkpoint namespace tag
	WorkflowType string `toml:"workflow_type" yaml:"workflow_type" validate:"required"`
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key" yaml:"api_key"`
	Model       string  `toml:"model" yaml:"model"`
	Timeout     string  `toml:"timeout" yaml:"timeout"`
	RateLimit   string  `toml:"rate_limit" yaml:"rate_limit"`
	Temperature float32 `toml:"temperature" yaml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key" yaml:"api_key"`
	Model       string  `toml:"model" yaml:"model"`
	MaxTokens   int     `toml:"max_tokens" yaml:"max_tokens"`
	Timeout     string  `toml:"timeout" yaml:"timeout"`
	RateLimit   string  `toml:"rate_limit" yaml:"rate_limit"`
	Temperature float32 `toml:"temperature" yaml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" yaml:"default_provider" validate:"oneof=gemini claude"`
}

// ScheduleConfig enables periodic matching runs
type ScheduleConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Cron    string `toml:"cron" yaml:"cron"` // cron expression, e.g. "0 2 * * *"
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings should be exposed in resumatch.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Matching: MatchingConfig{
			DBName: "resumatch",
			Collections: CollectionsConfig{
				JobPostings: "job_postings",
				Resumes:     "resumes",
				Matches:     "matches",
				Unmatched:   "unmatched",
			},
			IndustryPrefixes:    []string{},
			SearchTerms:         []string{},
			MaxJobs:             0, // all eligible
			TopK:                3,
			SimilarityThreshold: 0.3,
			ValidationThreshold: 70,
			LLMModel:            "gemini-3-flash-preview",
			PromptVersion:       "v1",
			LLMTimeout:          "5m",
			RetryAttempts:       3,
			RetryDelay:          "2s",
			MaxRetryDelay:       "30s",
			BatchSize:           20,
			MaxWorkers:          5,
			CheckpointInterval:  10,
			MemoryLimitMB:       1024,
			CacheTTL:            "30m",
			VectorSearchTimeout: "60s",
			VectorIndexName:     "resume_embedding_index",
			EmbeddingPath:       "text_embedding",
			ScoreNormalization:  "clamp",
			SkipProcessedJobs:   true,
			ForceReprocess:      false,
			WorkflowType:        "resume_matching",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-3-flash-preview",
			Timeout:     "5m",
			RateLimit:   "4s", // 15 RPM free tier
			Temperature: 0.2,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Timeout:     "5m",
			RateLimit:   "1s",
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Cron:    "0 2 * * *",
		},
	}
}

// LoadFromFiles loads configuration from files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier
// files. TOML and YAML files are supported, selected by extension.
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

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, config)
		default:
			err = toml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variables on top of file config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("RESUMATCH_DB_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("RESUMATCH_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("RESUMATCH_LLM_MODEL"); v != "" {
		config.Matching.LLMModel = v
	}
	if v := os.Getenv("RESUMATCH_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Matching.MaxWorkers = n
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		config.Gemini.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		config.Claude.APIKey = v
	}
}

// Validate rejects invalid configuration up front. The engine refuses to
// start on any validation failure.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Duration strings must parse
	durations := map[string]string{
		"matching.cache_ttl":             c.Matching.CacheTTL,
		"matching.retry_delay":           c.Matching.RetryDelay,
		"matching.max_retry_delay":       c.Matching.MaxRetryDelay,
		"matching.llm_timeout":           c.Matching.LLMTimeout,
		"matching.vector_search_timeout": c.Matching.VectorSearchTimeout,
		"gemini.timeout":                 c.Gemini.Timeout,
		"claude.timeout":                 c.Claude.Timeout,
	}
	for name, value := range durations {
		if value == "" {
			return fmt.Errorf("invalid configuration: %s is required", name)
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", name, err)
		}
	}

	if c.Matching.ForceReprocess && !c.Matching.SkipProcessedJobs {
		// force_reprocess only overrides skip_processed_jobs; on its own it
		// is a no-op, which is usually a config mistake worth surfacing.
		GetLogger().Warn().Msg("force_reprocess set without skip_processed_jobs; it has no effect")
	}

	return nil
}

// mustDuration parses a duration string already checked by Validate.
func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// CacheTTLDuration returns the parsed resume-cache TTL.
func (m *MatchingConfig) CacheTTLDuration() time.Duration {
	return mustDuration(m.CacheTTL, 30*time.Minute)
}

// RetryDelayDuration returns the parsed base retry delay.
func (m *MatchingConfig) RetryDelayDuration() time.Duration {
	return mustDuration(m.RetryDelay, 2*time.Second)
}

// MaxRetryDelayDuration returns the parsed retry backoff ceiling.
func (m *MatchingConfig) MaxRetryDelayDuration() time.Duration {
	return mustDuration(m.MaxRetryDelay, 30*time.Second)
}

// LLMTimeoutDuration returns the parsed per-call LLM deadline.
func (m *MatchingConfig) LLMTimeoutDuration() time.Duration {
	return mustDuration(m.LLMTimeout, 5*time.Minute)
}

// VectorSearchTimeoutDuration returns the parsed vector-search deadline.
func (m *MatchingConfig) VectorSearchTimeoutDuration() time.Duration {
	return mustDuration(m.VectorSearchTimeout, 60*time.Second)
}

// Snapshot returns the effective matching configuration as a flat map for
// inclusion in workflow summaries.
func (m *MatchingConfig) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"db_name":              m.DBName,
		"industry_prefixes":    append([]string(nil), m.IndustryPrefixes...),
		"search_terms":         append([]string(nil), m.SearchTerms...),
		"max_jobs":             m.MaxJobs,
		"top_k":                m.TopK,
		"similarity_threshold": m.SimilarityThreshold,
		"validation_threshold": m.ValidationThreshold,
		"llm_model":            m.LLMModel,
		"prompt_version":       m.PromptVersion,
		"retry_attempts":       m.RetryAttempts,
		"retry_delay":          m.RetryDelay,
		"batch_size":           m.BatchSize,
		"max_workers":          m.MaxWorkers,
		"cache_ttl":            m.CacheTTL,
		"checkpoint_interval":  m.CheckpointInterval,
		"memory_limit_mb":      m.MemoryLimitMB,
		"skip_processed_jobs":  m.SkipProcessedJobs,
		"force_reprocess":      m.ForceReprocess,
		"score_normalization":  m.ScoreNormalization,
		"workflow_type":        m.WorkflowType,
	}
}
