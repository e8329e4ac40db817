package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/poiesic/knowbank"
	"gopkg.in/yaml.v3"
)

// Config holds the knowbank CLI configuration. Every field may also be set
// with a flag; flags win.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Bank      BankConfig      `yaml:"bank"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BankConfig mirrors knowbank.Config. Zero values take the library defaults.
type BankConfig struct {
	Dimension          int     `yaml:"dimension"`
	NGramSize          int     `yaml:"ngram_size"`
	SnippetLength      int     `yaml:"snippet_length"`
	OverlapThreshold   float64 `yaml:"overlap_threshold"`
	MaxPrimaryConcepts int     `yaml:"max_primary_concepts"`
}

type IngestionConfig struct {
	PoolSize       int           `yaml:"pool_size"`
	ExtractTimeout time.Duration `yaml:"extract_timeout"`
}

type ExtractorConfig struct {
	MaxKeywords      int `yaml:"max_keywords"`
	MinKeywordLength int `yaml:"min_keyword_length"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the metrics endpoint
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// LoadConfig reads a YAML config file. An empty path yields the defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}

		// Substitute env variables of the form ${VAR}
		data = expandEnvVars(data)

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	def := knowbank.DefaultConfig()
	if c.Bank.Dimension <= 0 {
		c.Bank.Dimension = def.Dimension
	}
	if c.Bank.NGramSize <= 0 {
		c.Bank.NGramSize = def.NGramSize
	}
	if c.Bank.SnippetLength <= 0 {
		c.Bank.SnippetLength = def.SnippetLength
	}
	if c.Bank.OverlapThreshold <= 0 {
		c.Bank.OverlapThreshold = def.OverlapThreshold
	}
	if c.Bank.MaxPrimaryConcepts <= 0 {
		c.Bank.MaxPrimaryConcepts = def.MaxPrimaryConcepts
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if err := c.BankConfig().Validate(); err != nil {
		return fmt.Errorf("bank: %w", err)
	}
	if c.Ingestion.PoolSize < 0 {
		return fmt.Errorf("ingestion.pool_size must not be negative, got %d", c.Ingestion.PoolSize)
	}
	if c.Ingestion.ExtractTimeout < 0 {
		return fmt.Errorf("ingestion.extract_timeout must not be negative, got %v", c.Ingestion.ExtractTimeout)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// BankConfig converts the bank section to a knowbank.Config.
func (c *Config) BankConfig() knowbank.Config {
	return knowbank.Config{
		Dimension:          c.Bank.Dimension,
		NGramSize:          c.Bank.NGramSize,
		SnippetLength:      c.Bank.SnippetLength,
		OverlapThreshold:   c.Bank.OverlapThreshold,
		MaxPrimaryConcepts: c.Bank.MaxPrimaryConcepts,
	}
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
