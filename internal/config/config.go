// Package config provides configuration management for Luminaries.
// Settings come from built-in defaults, then an optional YAML file, then
// environment variables with the LUMINARIES_ prefix, in that order of
// increasing precedence. The result is validated before use and injected
// into components at construction; nothing else reads the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Luminaries application.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	LLM     LLMConfig     `yaml:"llm"`
	Sources SourcesConfig `yaml:"sources"`
	Engine  EngineConfig  `yaml:"engine"`
	Scoring ScoringConfig `yaml:"scoring"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port      int     `yaml:"port" validate:"min=1,max=65535"` // default: 6464
	Host      string  `yaml:"host" validate:"required"`        // default: 127.0.0.1
	RateLimit float64 `yaml:"rate_limit" validate:"gt=0"`      // requests per second per client
	RateBurst int     `yaml:"rate_burst" validate:"min=1"`
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine" validate:"oneof=sqlite postgres"` // default: sqlite
	DataPath    string `yaml:"data_path"`                               // sqlite directory (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Engine postgres"`
}

// LLMConfig contains text-generation provider configuration.
type LLMConfig struct {
	Provider        string        `yaml:"provider" validate:"oneof=ollama openai anthropic"` // default: ollama
	OllamaURL       string        `yaml:"ollama_url" validate:"omitempty,url"`
	OllamaModel     string        `yaml:"ollama_model"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	OpenAIModel     string        `yaml:"openai_model"`
	OpenAIBaseURL   string        `yaml:"openai_base_url" validate:"omitempty,url"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	AnthropicModel  string        `yaml:"anthropic_model"`
	Temperature     float64       `yaml:"temperature" validate:"gte=0,lte=2"` // extraction runs cold (default: 0.1)
	Timeout         time.Duration `yaml:"timeout" validate:"gt=0"`
}

// SourcesConfig carries credentials and policy for every source adapter.
// An adapter whose credential is empty reports itself unconfigured.
type SourcesConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
	MaxRetries     int           `yaml:"max_retries" validate:"min=0,max=10"`
	UserAgent      string        `yaml:"user_agent"`

	WikidataURL  string  `yaml:"wikidata_url" validate:"required,url"`
	WikidataRate float64 `yaml:"wikidata_rate" validate:"gt=0"` // requests per second (default: 2)

	GitHubToken    string  `yaml:"github_token"`
	GitHubURL      string  `yaml:"github_url" validate:"required,url"`
	GitHubRate     float64 `yaml:"github_rate" validate:"gt=0"` // default: 1
	GitHubMaxRepos int     `yaml:"github_max_repos" validate:"min=1,max=100"`

	YouTubeAPIKey      string `yaml:"youtube_api_key"`
	YouTubeURL         string `yaml:"youtube_url" validate:"required,url"`
	YouTubeConcurrency int    `yaml:"youtube_concurrency" validate:"min=1,max=8"`
	YouTubeMaxResults  int    `yaml:"youtube_max_results" validate:"min=1,max=50"`

	XBearerToken string `yaml:"x_bearer_token"`
	XURL         string `yaml:"x_url" validate:"required,url"`
	XMaxPosts    int    `yaml:"x_max_posts" validate:"min=5,max=100"`

	OpenAlexURL    string `yaml:"openalex_url" validate:"required,url"`
	OpenAlexMailto string `yaml:"openalex_mailto"`
	OpenAlexMax    int    `yaml:"openalex_max" validate:"min=1,max=200"`

	WebSearchAPIKey string `yaml:"websearch_api_key"`
	WebSearchURL    string `yaml:"websearch_url" validate:"required,url"`
	WebSearchMax    int    `yaml:"websearch_max" validate:"min=1,max=20"`
}

// EngineConfig controls the enrichment worker pool.
type EngineConfig struct {
	Workers        int           `yaml:"workers" validate:"min=1,max=64"`
	QueueSize      int           `yaml:"queue_size" validate:"min=1"`
	MaxAttempts    int           `yaml:"max_attempts" validate:"min=1"`
	AdapterLimit   int           `yaml:"adapter_limit" validate:"min=1"` // concurrent adapters per run
	RunTimeout     time.Duration `yaml:"run_timeout" validate:"gt=0"`
	RecoverOnStart bool          `yaml:"recover_on_start"`
}

// ScoringConfig points at the hand-curated influence override feed.
type ScoringConfig struct {
	InfluenceFeed string `yaml:"influence_feed"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error disabled"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 6464, Host: "127.0.0.1", RateLimit: 20, RateBurst: 40},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "qwen2.5:7b",
			OpenAIModel:    "gpt-4o-mini",
			AnthropicModel: "claude-3-5-haiku-20241022",
			Temperature:    0.1,
			Timeout:        90 * time.Second,
		},
		Sources: SourcesConfig{
			RequestTimeout:     15 * time.Second,
			MaxRetries:         2,
			UserAgent:          "luminaries-enricher/1.0",
			WikidataURL:        "https://www.wikidata.org",
			WikidataRate:       2,
			GitHubURL:          "https://api.github.com",
			GitHubRate:         1,
			GitHubMaxRepos:     25,
			YouTubeURL:         "https://www.googleapis.com/youtube/v3",
			YouTubeConcurrency: 2,
			YouTubeMaxResults:  10,
			XURL:               "https://api.x.com/2",
			XMaxPosts:          20,
			OpenAlexURL:        "https://api.openalex.org",
			OpenAlexMax:        25,
			WebSearchURL:       "https://api.tavily.com",
			WebSearchMax:       5,
		},
		Engine: EngineConfig{
			Workers:        2,
			QueueSize:      100,
			MaxAttempts:    3,
			AdapterLimit:   4,
			RunTimeout:     10 * time.Minute,
			RecoverOnStart: true,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration. path may be empty, in which case
// LUMINARIES_CONFIG is consulted; a missing file is an error only when a
// path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("LUMINARIES_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
			}
		case explicit || !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads configuration from the environment only.
func LoadConfig() (*Config, error) {
	return Load("")
}

var validate = validator.New()

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// applyEnv overlays LUMINARIES_* environment variables on top of the current values.
func (c *Config) applyEnv() {
	c.Server.Port = getEnvInt("LUMINARIES_PORT", c.Server.Port)
	c.Server.Host = getEnv("LUMINARIES_HOST", c.Server.Host)
	c.Server.RateLimit = getEnvFloat("LUMINARIES_RATE_LIMIT", c.Server.RateLimit)
	c.Server.RateBurst = getEnvInt("LUMINARIES_RATE_BURST", c.Server.RateBurst)

	c.Storage.Engine = getEnv("LUMINARIES_STORAGE_ENGINE", c.Storage.Engine)
	c.Storage.DataPath = getEnv("LUMINARIES_DATA_PATH", c.Storage.DataPath)
	c.Storage.PostgresDSN = getEnv("LUMINARIES_POSTGRES_DSN", c.Storage.PostgresDSN)

	c.LLM.Provider = getEnv("LUMINARIES_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.OllamaURL = getEnv("LUMINARIES_OLLAMA_URL", c.LLM.OllamaURL)
	c.LLM.OllamaModel = getEnv("LUMINARIES_OLLAMA_MODEL", c.LLM.OllamaModel)
	c.LLM.OpenAIAPIKey = getEnv("LUMINARIES_OPENAI_API_KEY", c.LLM.OpenAIAPIKey)
	c.LLM.OpenAIModel = getEnv("LUMINARIES_OPENAI_MODEL", c.LLM.OpenAIModel)
	c.LLM.OpenAIBaseURL = getEnv("LUMINARIES_OPENAI_BASE_URL", c.LLM.OpenAIBaseURL)
	c.LLM.AnthropicAPIKey = getEnv("LUMINARIES_ANTHROPIC_API_KEY", c.LLM.AnthropicAPIKey)
	c.LLM.AnthropicModel = getEnv("LUMINARIES_ANTHROPIC_MODEL", c.LLM.AnthropicModel)
	c.LLM.Temperature = getEnvFloat("LUMINARIES_LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvDuration("LUMINARIES_LLM_TIMEOUT", c.LLM.Timeout)

	s := &c.Sources
	s.RequestTimeout = getEnvDuration("LUMINARIES_REQUEST_TIMEOUT", s.RequestTimeout)
	s.MaxRetries = getEnvInt("LUMINARIES_MAX_RETRIES", s.MaxRetries)
	s.WikidataURL = getEnv("LUMINARIES_WIKIDATA_URL", s.WikidataURL)
	s.WikidataRate = getEnvFloat("LUMINARIES_WIKIDATA_RATE", s.WikidataRate)
	s.GitHubToken = getEnv("LUMINARIES_GITHUB_TOKEN", s.GitHubToken)
	s.GitHubURL = getEnv("LUMINARIES_GITHUB_URL", s.GitHubURL)
	s.GitHubRate = getEnvFloat("LUMINARIES_GITHUB_RATE", s.GitHubRate)
	s.GitHubMaxRepos = getEnvInt("LUMINARIES_GITHUB_MAX_REPOS", s.GitHubMaxRepos)
	s.YouTubeAPIKey = getEnv("LUMINARIES_YOUTUBE_API_KEY", s.YouTubeAPIKey)
	s.YouTubeURL = getEnv("LUMINARIES_YOUTUBE_URL", s.YouTubeURL)
	s.XBearerToken = getEnv("LUMINARIES_X_BEARER_TOKEN", s.XBearerToken)
	s.XURL = getEnv("LUMINARIES_X_URL", s.XURL)
	s.OpenAlexURL = getEnv("LUMINARIES_OPENALEX_URL", s.OpenAlexURL)
	s.OpenAlexMailto = getEnv("LUMINARIES_OPENALEX_MAILTO", s.OpenAlexMailto)
	s.WebSearchAPIKey = getEnv("LUMINARIES_WEBSEARCH_API_KEY", s.WebSearchAPIKey)
	s.WebSearchURL = getEnv("LUMINARIES_WEBSEARCH_URL", s.WebSearchURL)

	c.Engine.Workers = getEnvInt("LUMINARIES_WORKERS", c.Engine.Workers)
	c.Engine.QueueSize = getEnvInt("LUMINARIES_QUEUE_SIZE", c.Engine.QueueSize)
	c.Engine.MaxAttempts = getEnvInt("LUMINARIES_MAX_ATTEMPTS", c.Engine.MaxAttempts)
	c.Engine.AdapterLimit = getEnvInt("LUMINARIES_ADAPTER_LIMIT", c.Engine.AdapterLimit)
	c.Engine.RunTimeout = getEnvDuration("LUMINARIES_RUN_TIMEOUT", c.Engine.RunTimeout)
	c.Engine.RecoverOnStart = getEnvBool("LUMINARIES_RECOVER_ON_START", c.Engine.RecoverOnStart)

	c.Scoring.InfluenceFeed = getEnv("LUMINARIES_INFLUENCE_FEED", c.Scoring.InfluenceFeed)

	c.Log.Level = getEnv("LUMINARIES_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LUMINARIES_LOG_FORMAT", c.Log.Format)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
