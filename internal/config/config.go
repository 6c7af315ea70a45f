// Package config loads the service configuration from per-environment YAML
// files with environment-variable expansion.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

// Config holds the fusegate service configuration.
type Config struct {
	HTTP       HTTPConfig            `yaml:"http"`
	Auth       AuthConfig            `yaml:"auth"`
	Logging    LoggingConfig         `yaml:"logging"`
	Database   DatabaseConfig        `yaml:"database"`
	Search     SearchConfig          `yaml:"search"`
	Models     ModelsConfig          `yaml:"models"`
	Resilience ResilienceConfig      `yaml:"resilience"`
	Gate       GateConfig            `yaml:"gate"`
	Pipeline   domain.PipelineConfig `yaml:"pipeline"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// AuthConfig holds API authentication settings. An empty key list disables
// auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: by env)
}

// DatabaseConfig holds the optional Valkey score-cache tier. No addrs means
// the in-process cache only.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	ScoreTTLSec      int      `yaml:"score_ttl_sec"`
}

// SearchConfig holds the upstream retrieval endpoints.
type SearchConfig struct {
	LexicalURL     string `yaml:"lexical_url"`
	DenseURL       string `yaml:"dense_url"`
	APIKey         string `yaml:"api_key"`
	CallTimeoutSec int    `yaml:"call_timeout_sec"`
}

// ModelsConfig holds the OpenAI-compatible model provider settings. Roles
// left without a model are not wired; the pipeline degrades those signals.
type ModelsConfig struct {
	Provider          string  `yaml:"provider"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	RerankerModel     string  `yaml:"reranker_model"`
	EntailerModel     string  `yaml:"entailer_model"`
	GeneratorModel    string  `yaml:"generator_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// ResilienceConfig holds retry and circuit-breaker settings for model calls.
type ResilienceConfig struct {
	MaxAttempts        int     `yaml:"max_attempts"`
	InitialBackoffMS   int     `yaml:"initial_backoff_ms"`
	MaxBackoffMS       int     `yaml:"max_backoff_ms"`
	BreakerEnabled     bool    `yaml:"breaker_enabled"`
	BreakerRatio       float64 `yaml:"breaker_failure_ratio"`
	BreakerMinRequests int     `yaml:"breaker_min_requests"`
	BreakerOpenSec     int     `yaml:"breaker_open_timeout_sec"`
}

// GateConfig holds health-probe and rolling-window settings.
type GateConfig struct {
	ProbeTimeoutSec  int `yaml:"probe_timeout_sec"`
	ProbeIntervalSec int `yaml:"probe_interval_sec"`
	WindowSize       int `yaml:"window_size"`
}

// Load reads configuration for the named environment (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	data = expandEnvVars(data)

	cfg := Config{Pipeline: domain.DefaultPipelineConfig()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the environment from ENV, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.ScoreTTLSec <= 0 {
		c.Database.ScoreTTLSec = 24 * 3600
	}
	if c.Search.CallTimeoutSec <= 0 {
		c.Search.CallTimeoutSec = 5
	}
	if c.Resilience.MaxAttempts <= 0 {
		c.Resilience.MaxAttempts = 3
	}
	if c.Resilience.InitialBackoffMS <= 0 {
		c.Resilience.InitialBackoffMS = 200
	}
	if c.Resilience.MaxBackoffMS <= 0 {
		c.Resilience.MaxBackoffMS = 5000
	}
	if c.Gate.ProbeTimeoutSec <= 0 {
		c.Gate.ProbeTimeoutSec = 2
	}
	if c.Gate.WindowSize <= 0 {
		c.Gate.WindowSize = 1000
	}
}

// Validate checks the configuration for correctness. Pipeline thresholds get
// their own Validate pass so out-of-range values fail at load, not at query
// time.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Search.LexicalURL == "" {
		return fmt.Errorf("search.lexical_url is required")
	}
	if c.Search.DenseURL == "" {
		return fmt.Errorf("search.dense_url is required")
	}
	if c.Models.RerankerModel != "" || c.Models.EntailerModel != "" || c.Models.GeneratorModel != "" {
		if c.Models.APIKey == "" {
			return fmt.Errorf("models.api_key is required when any model is configured")
		}
	}
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment
// variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
