package industrymatch

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration. The limit table and priority
// order come from YAML (or the built-in defaults); credentials come
// from the environment, optionally seeded from a .env file.
type Config struct {
	Models        map[string]ModelLimit `yaml:"models"`
	ModelPriority []string              `yaml:"model_priority"`
	BatchSize     int                   `yaml:"batch_size"`
	LookbackHours int                   `yaml:"lookback_hours"`
	MaxRetries    int                   `yaml:"max_retries"`

	// From environment, never from YAML.
	GeminiAPIKey string `yaml:"-"`
	DatabaseURL  string `yaml:"-"`
	RedisURL     string `yaml:"-"`
	SQLitePath   string `yaml:"-"`
}

// DefaultConfig returns the built-in Gemini free-tier limit table with
// candidates ordered by daily quota headroom.
func DefaultConfig() Config {
	return Config{
		Models: map[string]ModelLimit{
			"gemini-2.0-flash-lite": {RPM: 30, TPM: 1_000_000, RPD: 200},
			"gemini-2.0-flash":      {RPM: 15, TPM: 1_000_000, RPD: 200},
			"gemini-2.5-flash-lite": {RPM: 15, TPM: 250_000, RPD: 1000},
			"gemini-2.5-flash":      {RPM: 10, TPM: 250_000, RPD: 250},
			"gemini-2.5-pro":        {RPM: 5, TPM: 250_000, RPD: 100},
		},
		ModelPriority: []string{
			"gemini-2.0-flash-lite",
			"gemini-2.0-flash",
			"gemini-2.5-flash-lite",
			"gemini-2.5-flash",
			"gemini-2.5-pro",
		},
		BatchSize:     5,
		LookbackHours: 2,
		MaxRetries:    3,
	}
}

// Lookback returns the item fetch window as a duration.
func (c Config) Lookback() time.Duration {
	return time.Duration(c.LookbackHours) * time.Hour
}

// LoadConfig builds the configuration: defaults, then the YAML file at
// path (if non-empty; ${VAR} references are expanded first), then
// environment variables. A .env file in the working directory is
// loaded into the environment if present.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("industrymatch: read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("industrymatch: parse config: %w", err)
		}
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.SQLitePath = getEnvString("SQLITE_PATH", "industrymatch.db")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("industrymatch: config: GEMINI_API_KEY is required")
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("industrymatch: config: at least one model is required")
	}
	if len(c.ModelPriority) == 0 {
		return fmt.Errorf("industrymatch: config: model_priority is required")
	}
	for _, m := range c.ModelPriority {
		limit, ok := c.Models[m]
		if !ok {
			return fmt.Errorf("industrymatch: config: model_priority entry %q has no limit table entry", m)
		}
		if limit.RPM <= 0 || limit.TPM <= 0 || limit.RPD <= 0 {
			return fmt.Errorf("industrymatch: config: model %q: rpm, tpm and rpd must be positive", m)
		}
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("industrymatch: config: batch_size must be positive")
	}
	if c.LookbackHours <= 0 {
		return fmt.Errorf("industrymatch: config: lookback_hours must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("industrymatch: config: max_retries must be positive")
	}
	return nil
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
