package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultConfigFile = "config.yaml"

// PricingTable is one versioned set of pricing constants.
type PricingTable struct {
	Version          string  `yaml:"version"`
	Model            string  `yaml:"model"`
	ModelProvider    string  `yaml:"model_provider"`
	SearchProvider   string  `yaml:"search_provider"`
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
	SearchPerCall    float64 `yaml:"search_per_call"`
	Currency         string  `yaml:"currency"`
}

type Config struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`

	StorageBackend string `yaml:"storage_backend"`
	DatabaseURL    string `yaml:"database_url"`

	AuthMode      string `yaml:"auth_mode"`
	Auth0Domain   string `yaml:"auth0_domain"`
	Auth0Audience string `yaml:"auth0_audience"`
	DevSubject    string `yaml:"dev_subject"`

	GenAIAPIKey string `yaml:"-"`
	GeminiModel string `yaml:"gemini_model"`

	SearchAPIKey   string        `yaml:"-"`
	SearchAPIURL   string        `yaml:"search_api_url"`
	SearchCountry  string        `yaml:"search_country"`
	SearchLanguage string        `yaml:"search_language"`
	SearchTimeout  time.Duration `yaml:"search_timeout"`

	AgentTimeout       time.Duration `yaml:"agent_timeout"`
	AgentMaxIterations int           `yaml:"agent_max_iterations"`

	CacheTTL           time.Duration `yaml:"cache_ttl"`
	CacheSweepInterval time.Duration `yaml:"cache_sweep_interval"`

	PricingVersion string         `yaml:"pricing_version"`
	Pricing        []PricingTable `yaml:"pricing"`
}

func NewConfig() *Config {
	return &Config{
		Port:               "3000",
		AllowedOrigins:     []string{"http://localhost:5173"},
		LogLevel:           "info",
		LogFormat:          "json",
		StorageBackend:     "postgres",
		AuthMode:           "jwt",
		DevSubject:         "dev|local",
		GeminiModel:        "gemini-1.5-flash",
		SearchAPIURL:       "https://google.serper.dev/search",
		SearchCountry:      "pl",
		SearchLanguage:     "en",
		SearchTimeout:      10 * time.Second,
		AgentTimeout:       90 * time.Second,
		AgentMaxIterations: 8,
		CacheTTL:           48 * time.Hour,
		CacheSweepInterval: 30 * time.Minute,
		PricingVersion:     "2024-08",
		Pricing: []PricingTable{
			{
				Version:          "2024-08",
				Model:            "gemini-1.5-flash",
				ModelProvider:    "google",
				SearchProvider:   "serper",
				InputPerMillion:  0.075,
				OutputPerMillion: 0.30,
				SearchPerCall:    0.001,
				Currency:         "USD",
			},
		},
	}
}

// Load builds the configuration from defaults, then the optional YAML file,
// then environment variables (a .env file is loaded first when present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := NewConfig()
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = DefaultConfigFile
	}
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.Port, "PORT")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = strings.Split(v, ",")
	}
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.StorageBackend, "STORAGE_BACKEND")
	setString(&c.DatabaseURL, "DATABASE_URL")
	if c.DatabaseURL == "" && os.Getenv("DB_HOST") != "" {
		c.DatabaseURL = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			os.Getenv("DB_HOST"),
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_NAME"),
			os.Getenv("DB_PORT"),
		)
	}
	setString(&c.AuthMode, "AUTH_MODE")
	setString(&c.Auth0Domain, "AUTH0_DOMAIN")
	setString(&c.Auth0Audience, "AUTH0_AUDIENCE")
	setString(&c.DevSubject, "DEV_SUBJECT")
	setString(&c.GenAIAPIKey, "GOOGLE_AI_STUDIO_API_KEY")
	setString(&c.GeminiModel, "GEMINI_MODEL")
	setString(&c.SearchAPIKey, "SEARCH_API_KEY")
	setString(&c.SearchAPIURL, "SEARCH_API_URL")
	setString(&c.SearchCountry, "SEARCH_COUNTRY")
	setString(&c.SearchLanguage, "SEARCH_LANGUAGE")
	setString(&c.PricingVersion, "PRICING_VERSION")

	for key, dst := range map[string]*time.Duration{
		"SEARCH_TIMEOUT":       &c.SearchTimeout,
		"AGENT_TIMEOUT":        &c.AgentTimeout,
		"CACHE_TTL":            &c.CacheTTL,
		"CACHE_SWEEP_INTERVAL": &c.CacheSweepInterval,
	} {
		if err := setDuration(dst, key); err != nil {
			return err
		}
	}
	if v := os.Getenv("AGENT_MAX_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AGENT_MAX_ITERATIONS: %w", err)
		}
		c.AgentMaxIterations = n
	}
	return nil
}

// Validate checks the settings needed for the selected backends.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL (or DB_HOST/DB_USER/...) is required for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	switch c.AuthMode {
	case "jwt":
		if c.Auth0Domain == "" {
			return errors.New("AUTH0_DOMAIN is required when AUTH_MODE=jwt")
		}
	case "dev":
	default:
		return fmt.Errorf("unknown auth mode %q", c.AuthMode)
	}
	if c.GenAIAPIKey == "" {
		return errors.New("GOOGLE_AI_STUDIO_API_KEY is not set")
	}
	if c.SearchAPIKey == "" {
		return errors.New("SEARCH_API_KEY is not set")
	}
	if c.AgentMaxIterations < 1 {
		return errors.New("agent max iterations must be at least 1")
	}
	if c.CacheTTL <= 0 || c.SearchTimeout <= 0 || c.AgentTimeout <= 0 || c.CacheSweepInterval <= 0 {
		return errors.New("timeouts, cache TTL and sweep interval must be positive")
	}
	if _, err := c.ActivePricing(); err != nil {
		return err
	}
	return nil
}

// ActivePricing returns the pricing table selected by PricingVersion.
func (c *Config) ActivePricing() (PricingTable, error) {
	for _, p := range c.Pricing {
		if p.Version == c.PricingVersion {
			return p, nil
		}
	}
	return PricingTable{}, fmt.Errorf("pricing version %q not found", c.PricingVersion)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
