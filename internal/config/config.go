package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models coo.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	LLM       LLMConfig       `yaml:"llm"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

type DatabaseConfig struct {
	Driver    string `yaml:"driver"`
	Workspace string `yaml:"workspace"`
	DSN       string `yaml:"dsn"`
}

type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	CookieName  string `yaml:"cookie_name"`
	AllowCookie bool   `yaml:"allow_cookie"`
}

type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
}

type TelemetryConfig struct {
	ServiceName  string            `yaml:"service_name"`
	OTLPEndpoint string            `yaml:"otlp_endpoint"`
	OTLPHeaders  map[string]string `yaml:"otlp_headers"`
	Metrics      bool              `yaml:"metrics"`
}

// TracingEnabled reports whether spans and logs are exported over OTLP.
func (t TelemetryConfig) TracingEnabled() bool {
	return strings.TrimSpace(t.OTLPEndpoint) != ""
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("config.database.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("config.database.driver must be 'sqlite' or 'postgres', got %q", c.Database.Driver)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with '/'")
	}
	switch c.LLM.Provider {
	case ProviderNone, "":
	case ProviderOpenAI, ProviderAnthropic:
		if c.LLM.Timeout < 0 {
			return fmt.Errorf("config.llm.timeout must not be negative")
		}
	default:
		return fmt.Errorf("config.llm.provider must be one of none, openai, anthropic")
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("config.llm.max_tokens must not be negative")
	}
	if c.Auth.AllowCookie && c.Auth.CookieName == "" {
		return fmt.Errorf("config.auth.cookie_name is required when allow_cookie is set")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be 'text' or 'json'")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "coo.yml")
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses config on top of the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(path string) (*Config, error) {
	cfg, err := FromFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills empty fields from the conventional provider environment
// variables. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case ProviderOpenAI:
			c.LLM.APIKey = getenv("OPENAI_API_KEY")
		case ProviderAnthropic:
			c.LLM.APIKey = getenv("ANTHROPIC_API_KEY")
		}
	}
	if c.Database.DSN == "" {
		if dsn := getenv("DATABASE_URL"); dsn != "" {
			c.Database.DSN = dsn
			if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
				c.Database.Driver = DriverPostgres
			}
		}
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = getenv("COO_JWT_SECRET")
	}
	if c.Telemetry.OTLPEndpoint == "" {
		c.Telemetry.OTLPEndpoint = getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

database:
  driver: sqlite
  workspace: .

auth:
  cookie_name: wy_email
  allow_cookie: false

llm:
  provider: none
  model: ""
  timeout: 30s
  max_tokens: 1200

telemetry:
  service_name: aicoo
  metrics: true

log:
  level: info
  format: text
`
