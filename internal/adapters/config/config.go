package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"conductor/pkg/errors"
)

type Config struct {
	App           AppConfig
	Agents        AgentsConfig
	Mem0          Mem0Config
	Firecrawl     FirecrawlConfig
	Redis         RedisConfig
	ErrorTracking ErrorTrackingConfig
	Metrics       MetricsConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"conductor"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

// AgentsConfig carries runtime defaults for workflow execution
type AgentsConfig struct {
	DefaultProvider  string        `envconfig:"AGENTS_DEFAULT_PROVIDER" default:"gemini"`
	DefaultModel     string        `envconfig:"AGENTS_DEFAULT_MODEL" default:"gemini-2.0-flash"`
	GeminiAPIKey     string        `envconfig:"GOOGLE_API_KEY"`
	ExecutionTimeout time.Duration `envconfig:"AGENTS_EXECUTION_TIMEOUT" default:"2m"`
	Streaming        bool          `envconfig:"AGENTS_STREAMING" default:"true"`
}

type Mem0Config struct {
	APIKey    string        `envconfig:"MEM0_API_KEY"`
	OrgID     string        `envconfig:"MEM0_ORG_ID"`
	ProjectID string        `envconfig:"MEM0_PROJECT_ID"`
	BaseURL   string        `envconfig:"MEM0_BASE_URL" default:"https://api.mem0.ai"`
	Timeout   time.Duration `envconfig:"MEM0_TIMEOUT" default:"15s"`
}

// Enabled reports whether the Mem0 integration is configured
func (c Mem0Config) Enabled() bool {
	return c.APIKey != ""
}

type FirecrawlConfig struct {
	APIKey         string        `envconfig:"FIRECRAWL_API_KEY"`
	BaseURL        string        `envconfig:"FIRECRAWL_BASE_URL" default:"https://api.firecrawl.dev/v2"`
	Timeout        time.Duration `envconfig:"FIRECRAWL_TIMEOUT" default:"30s"`
	RequestsPerMin int           `envconfig:"FIRECRAWL_REQUESTS_PER_MIN" default:"60"`
}

// Enabled reports whether the Firecrawl integration is configured
func (c FirecrawlConfig) Enabled() bool {
	return c.APIKey != ""
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
