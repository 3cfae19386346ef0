package guardowl

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM providers selectable via configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds process configuration. Values load from an optional YAML
// file with environment variables taking precedence for secrets and
// connection strings.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// Provider selects the LLM backend: "openai" or "anthropic".
	Provider string `yaml:"provider"`

	OpenAI struct {
		APIKey         string  `yaml:"apiKey"`
		Model          string  `yaml:"model"`
		EmbeddingModel string  `yaml:"embeddingModel"`
		Temperature    float32 `yaml:"temperature"`
	} `yaml:"openai"`

	Anthropic struct {
		APIKey    string `yaml:"apiKey"`
		BaseURL   string `yaml:"baseUrl"`
		Model     string `yaml:"model"`
		MaxTokens int    `yaml:"maxTokens"`
	} `yaml:"anthropic"`

	Weaviate struct {
		Host   string `yaml:"host"`
		Scheme string `yaml:"scheme"`
		Class  string `yaml:"class"`
	} `yaml:"weaviate"`

	// PostgresURL is the conversation store connection string. Empty
	// selects the in-memory store (dev/test only).
	PostgresURL string `yaml:"postgresUrl"`

	// ReportsDataPath points at a JSON file of reports to ingest when
	// the report collection is empty at startup.
	ReportsDataPath string `yaml:"reportsDataPath"`

	AllowedOrigins     []string      `yaml:"allowedOrigins"`
	RequestTimeout     time.Duration `yaml:"requestTimeout"`
	MaxMessageLength   int           `yaml:"maxMessageLength"`
	MaxRequestBodySize int64         `yaml:"maxRequestBodySize"`
}

// LoadConfig reads a YAML config file (optional) and applies environment
// overrides and defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg = cfg.withDefaults()
	return cfg, cfg.validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Anthropic.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.PostgresURL = v
	}
	if v := os.Getenv("WEAVIATE_HOST"); v != "" {
		c.Weaviate.Host = v
	}
	if v := os.Getenv("GUARDOWL_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("GUARDOWL_PROVIDER"); v != "" {
		c.Provider = v
	}
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Weaviate.Host == "" {
		c.Weaviate.Host = "localhost:8080"
	}
	if c.Weaviate.Scheme == "" {
		c.Weaviate.Scheme = "http"
	}
	if c.Weaviate.Class == "" {
		c.Weaviate.Class = "SecurityReport"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = 4000
	}
	if c.MaxRequestBodySize <= 0 {
		c.MaxRequestBodySize = 1 << 20
	}
	return c
}

func (c Config) validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return errors.New("OpenAI API key is required (set OPENAI_API_KEY)")
		}
	case ProviderAnthropic:
		if c.Anthropic.APIKey == "" {
			return errors.New("Anthropic API key is required (set ANTHROPIC_API_KEY)")
		}
		if c.OpenAI.APIKey == "" {
			return errors.New("semantic search needs OpenAI embeddings; set OPENAI_API_KEY alongside the Anthropic key")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	return nil
}
