// Package config handles eavdb configuration via YAML files and environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--max-rounds, --strict, etc.)
//  2. Environment variables (EAVDB_*)
//  3. Config file (config.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
//	fmt.Printf("Round cap: %d\n", cfg.Evaluation.MaxRounds)
//
// Environment Variables (all use EAVDB_ prefix):
//
// Evaluation:
//   - EAVDB_MAX_ROUNDS=10
//   - EAVDB_STRICT_FIXPOINT=false
//   - EAVDB_DEFAULT_SCOPE="session"
//   - EAVDB_SCOPES="session,system"
//
// Logging:
//   - EAVDB_LOG_LEVEL="INFO"
//   - EAVDB_LOG_OUTPUT="stderr"
//   - EAVDB_LOG_BLOCKS=false
//
// Metrics:
//   - EAVDB_METRICS_ENABLED=false
//   - EAVDB_METRICS_NAMESPACE="eavdb"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all eavdb configuration.
//
// Configuration is organized into logical sections:
//   - Evaluation: fixpoint driver settings
//   - Logging: log level, destination and per-block tracing
//   - Metrics: Prometheus collector settings
//
// Example:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
type Config struct {
	// Evaluation settings
	Evaluation EvaluationConfig

	// Logging
	Logging LoggingConfig

	// Metrics collection
	Metrics MetricsConfig
}

// EvaluationConfig holds fixpoint driver settings.
type EvaluationConfig struct {
	// MaxRounds caps the rounds of one fixpoint.
	MaxRounds int
	// StrictFixpoint turns hitting MaxRounds into an error instead of a
	// logged, partial result.
	StrictFixpoint bool
	// DefaultScope is the scope facts and actions use when none is named.
	DefaultScope string
	// Scopes are registered up front, in order.
	Scopes []string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (DEBUG, INFO, WARN, ERROR)
	Level string
	// Output path (stdout, stderr, or file path)
	Output string
	// LogBlocks logs every block execution with its duration
	LogBlocks bool
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

var validLevels = []string{"DEBUG", "INFO", "WARN", "ERROR"}

// LoadFromEnv returns the defaults overridden by environment variables.
func LoadFromEnv() *Config {
	config := LoadDefaults()
	applyEnvVars(config)
	return config
}

// Validate checks that the configuration is usable.
//
// Returns nil if configuration is valid, or an error describing the problem.
func (c *Config) Validate() error {
	if c.Evaluation.MaxRounds <= 0 {
		return fmt.Errorf("invalid max rounds: %d", c.Evaluation.MaxRounds)
	}
	if c.Evaluation.DefaultScope == "" {
		return fmt.Errorf("default scope must not be empty")
	}
	level := strings.ToUpper(c.Logging.Level)
	valid := false
	for _, l := range validLevels {
		if l == level {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("metrics enabled but no namespace provided")
	}
	return nil
}

// String returns a compact representation suitable for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{MaxRounds: %d, Strict: %v, Scope: %s, Log: %s, Metrics: %v}",
		c.Evaluation.MaxRounds, c.Evaluation.StrictFixpoint,
		c.Evaluation.DefaultScope, c.Logging.Level, c.Metrics.Enabled,
	)
}

// YAMLConfig represents the YAML configuration file structure.
// All fields mirror the environment variable configuration options.
type YAMLConfig struct {
	Evaluation struct {
		MaxRounds      int      `yaml:"max_rounds"`
		StrictFixpoint *bool    `yaml:"strict_fixpoint"`
		DefaultScope   string   `yaml:"default_scope"`
		Scopes         []string `yaml:"scopes"`
	} `yaml:"evaluation"`

	Logging struct {
		Level     string `yaml:"level"`
		Output    string `yaml:"output"`
		LogBlocks *bool  `yaml:"log_blocks"`
	} `yaml:"logging"`

	Metrics struct {
		Enabled   *bool  `yaml:"enabled"`
		Namespace string `yaml:"namespace"`
	} `yaml:"metrics"`
}

// LoadDefaults returns the built-in defaults.
//
// Precedence when loading:
//  1. Built-in defaults (this function)
//  2. Config file (YAML)
//  3. Environment variables
//  4. Command-line arguments (applied in main.go)
func LoadDefaults() *Config {
	config := &Config{}

	config.Evaluation.MaxRounds = 10
	config.Evaluation.StrictFixpoint = false
	config.Evaluation.DefaultScope = "session"

	config.Logging.Level = "INFO"
	config.Logging.Output = "stderr"
	config.Logging.LogBlocks = false

	config.Metrics.Enabled = false
	config.Metrics.Namespace = "eavdb"

	return config
}

func applyEnvVars(config *Config) {
	config.Evaluation.MaxRounds = getEnvInt("EAVDB_MAX_ROUNDS", config.Evaluation.MaxRounds)
	config.Evaluation.StrictFixpoint = getEnvBool("EAVDB_STRICT_FIXPOINT", config.Evaluation.StrictFixpoint)
	config.Evaluation.DefaultScope = getEnv("EAVDB_DEFAULT_SCOPE", config.Evaluation.DefaultScope)
	config.Evaluation.Scopes = getEnvStringSlice("EAVDB_SCOPES", config.Evaluation.Scopes)

	config.Logging.Level = strings.ToUpper(getEnv("EAVDB_LOG_LEVEL", config.Logging.Level))
	config.Logging.Output = getEnv("EAVDB_LOG_OUTPUT", config.Logging.Output)
	config.Logging.LogBlocks = getEnvBool("EAVDB_LOG_BLOCKS", config.Logging.LogBlocks)

	config.Metrics.Enabled = getEnvBool("EAVDB_METRICS_ENABLED", config.Metrics.Enabled)
	config.Metrics.Namespace = getEnv("EAVDB_METRICS_NAMESPACE", config.Metrics.Namespace)
}

// ApplyEnvVars applies environment variable overrides to an existing config.
// This is the exported version for use in main.go.
func ApplyEnvVars(config *Config) {
	applyEnvVars(config)
}

// LoadFromFile loads configuration with proper precedence:
//  1. Built-in defaults (lowest priority)
//  2. YAML config file
//  3. Environment variables (highest priority before CLI args)
//
// A missing file is not an error. An empty path skips the file.
//
// Example YAML:
//
//	evaluation:
//	  max_rounds: 20
//	  strict_fixpoint: true
//	logging:
//	  level: DEBUG
//	  log_blocks: true
func LoadFromFile(configPath string) (*Config, error) {
	config := LoadDefaults()

	if configPath == "" {
		applyEnvVars(config)
		return config, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvVars(config)
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var yamlCfg YAMLConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// === Evaluation Settings ===
	if yamlCfg.Evaluation.MaxRounds > 0 {
		config.Evaluation.MaxRounds = yamlCfg.Evaluation.MaxRounds
	}
	if yamlCfg.Evaluation.StrictFixpoint != nil {
		config.Evaluation.StrictFixpoint = *yamlCfg.Evaluation.StrictFixpoint
	}
	if yamlCfg.Evaluation.DefaultScope != "" {
		config.Evaluation.DefaultScope = yamlCfg.Evaluation.DefaultScope
	}
	if len(yamlCfg.Evaluation.Scopes) > 0 {
		config.Evaluation.Scopes = yamlCfg.Evaluation.Scopes
	}

	// === Logging Settings ===
	if yamlCfg.Logging.Level != "" {
		config.Logging.Level = strings.ToUpper(yamlCfg.Logging.Level)
	}
	if yamlCfg.Logging.Output != "" {
		config.Logging.Output = yamlCfg.Logging.Output
	}
	if yamlCfg.Logging.LogBlocks != nil {
		config.Logging.LogBlocks = *yamlCfg.Logging.LogBlocks
	}

	// === Metrics Settings ===
	if yamlCfg.Metrics.Enabled != nil {
		config.Metrics.Enabled = *yamlCfg.Metrics.Enabled
	}
	if yamlCfg.Metrics.Namespace != "" {
		config.Metrics.Namespace = yamlCfg.Metrics.Namespace
	}

	applyEnvVars(config)
	return config, nil
}

// FindConfigFile searches for config file in standard locations.
// Returns the path to the first config file found, or empty string if none found.
// Search order:
//  1. ~/.eavdb/config.yaml (user home directory - highest priority)
//  2. Current working directory (config.yaml, eavdb.yaml)
//  3. ~/.config/eavdb/config.yaml (Linux/Unix XDG standard)
func FindConfigFile() string {
	var candidates []string

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".eavdb", "config.yaml"))
	}

	candidates = append(candidates,
		"config.yaml",
		"eavdb.yaml",
	)

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "eavdb", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		// Split by comma, trim whitespace
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}
