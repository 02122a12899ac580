// Package config loads and validates the application configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/feedlens/feedlens/pkg/domain"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:feedlens.db?cache=shared&mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	Collection CollectionConfig `yaml:"collection" json:"collection" jsonschema:"description=Collection run configuration"`

	Classify ClassifyConfig `yaml:"classify" json:"classify" jsonschema:"description=Classification configuration"`

	Auth struct {
		GitHubToken string `yaml:"github_token" json:"github_token" jsonschema:"description=GitHub API token (can use environment variable)"`
		ADOToken    string `yaml:"ado_token" json:"ado_token" jsonschema:"description=Azure DevOps personal access token (can use environment variable)"`
	} `yaml:"auth" json:"auth" jsonschema:"description=Source authentication tokens"`

	Sources []domain.SourceConfig `yaml:"sources" json:"sources" jsonschema:"description=Feedback sources to collect from"`
}

// CollectionConfig holds collection run settings
type CollectionConfig struct {
	SourceTimeout       time.Duration `yaml:"source_timeout" json:"source_timeout" jsonschema:"default=2m,description=Per-source fetch deadline"`
	MaxWorkers          int           `yaml:"max_workers" json:"max_workers" jsonschema:"default=8,description=Maximum concurrent source fetches"`
	FetchRetries        int           `yaml:"fetch_retries" json:"fetch_retries" jsonschema:"default=3,description=Fetch attempts per source before failure"`
	SimilarityThreshold float64       `yaml:"similarity_threshold" json:"similarity_threshold" jsonschema:"default=0.7,minimum=0,maximum=1,description=Token similarity cutoff for repeat reporting"`
}

// ClassifyConfig holds classification settings
type ClassifyConfig struct {
	TablesPath string  `yaml:"tables_path" json:"tables_path" jsonschema:"description=Path to keyword tables YAML (embedded defaults when empty)"`
	MinScore   float64 `yaml:"min_score" json:"min_score" jsonschema:"default=0.05,minimum=0,maximum=1,description=Minimum keyword score to accept a category"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// set defaults for server
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30 * time.Second
	}

	// set defaults for database
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:feedlens.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 3600
	}

	// set defaults for collection
	if cfg.Collection.SourceTimeout == 0 {
		cfg.Collection.SourceTimeout = 2 * time.Minute
	}
	if cfg.Collection.MaxWorkers == 0 {
		cfg.Collection.MaxWorkers = 8
	}
	if cfg.Collection.FetchRetries == 0 {
		cfg.Collection.FetchRetries = 3
	}
	if cfg.Collection.SimilarityThreshold == 0 {
		cfg.Collection.SimilarityThreshold = 0.7
	}

	// set defaults for classification
	if cfg.Classify.MinScore == 0 {
		cfg.Classify.MinScore = 0.05
	}

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail, schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	if cfg.Collection.SourceTimeout < time.Second {
		return fmt.Errorf("collection source_timeout must be at least 1 second")
	}
	if cfg.Collection.SimilarityThreshold < 0 || cfg.Collection.SimilarityThreshold > 1 {
		return fmt.Errorf("collection similarity_threshold must be between 0 and 1")
	}
	if cfg.Classify.MinScore < 0 || cfg.Classify.MinScore > 1 {
		return fmt.Errorf("classify min_score must be between 0 and 1")
	}

	if len(cfg.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]struct{}, len(cfg.Sources))
	for _, src := range cfg.Sources {
		if err := src.Validate(); err != nil {
			return err
		}
		if _, ok := seen[src.Name]; ok {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = struct{}{}
	}

	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

// EnabledSources returns the sources with collection enabled
func (c *Config) EnabledSources() []domain.SourceConfig {
	enabled := make([]domain.SourceConfig, 0, len(c.Sources))
	for _, src := range c.Sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}
	return enabled
}
