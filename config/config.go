// Package config loads the entitygraph configuration from YAML, with
// ENTITYGRAPH_* environment variables taking precedence over the file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/surrealdb/entitygraph/pkg/constants"
)

// Store drivers.
const (
	DriverMemory    = "memory"
	DriverSurrealDB = "surrealdb"
)

// Config is the complete configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Bulk     BulkConfig     `yaml:"bulk"`
	Search   SearchConfig   `yaml:"search"`
	Resolver ResolverConfig `yaml:"resolver"`
	Schemas  SchemasConfig  `yaml:"schemas"`
	Log      LogConfig      `yaml:"log"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	// Driver is "memory" or "surrealdb".
	Driver    string          `yaml:"driver"`
	SurrealDB SurrealDBConfig `yaml:"surrealdb"`
}

type SurrealDBConfig struct {
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

type BulkConfig struct {
	ChunkSize   int `yaml:"chunkSize"`
	Concurrency int `yaml:"concurrency"`
}

type SearchConfig struct {
	PageSize int `yaml:"pageSize"`
}

type ResolverConfig struct {
	FetchBatch int `yaml:"fetchBatch"`
}

// SchemasConfig points at the schema directory. An empty Dir reads schemas
// from the store.
type SchemasConfig struct {
	Dir       string `yaml:"dir"`
	Pattern   string `yaml:"pattern"`
	CacheSize int    `yaml:"cacheSize"`
	Watch     bool   `yaml:"watch"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Path is a log file; empty logs to stderr.
	Path string `yaml:"path"`
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: DriverMemory,
			SurrealDB: SurrealDBConfig{
				URL:       "ws://localhost:8000",
				Namespace: "entitygraph",
				Database:  "entitygraph",
			},
		},
		Bulk: BulkConfig{
			ChunkSize:   constants.DefaultChunkSize,
			Concurrency: constants.DefaultConcurrency,
		},
		Search:   SearchConfig{PageSize: constants.MaxSearchPage},
		Resolver: ResolverConfig{FetchBatch: constants.DefaultFetchBatch},
		Schemas: SchemasConfig{
			Pattern:   "**/*.yaml",
			CacheSize: 256,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path only applies the overrides.
func Load(path string) (*Config, error) {
	c := NewConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overrides settings from ENTITYGRAPH_* variables.
func (c *Config) ApplyEnv() {
	c.Store.Driver = GetEnvOrDefault(EnvPrefix+"STORE_DRIVER", c.Store.Driver)
	sdb := &c.Store.SurrealDB
	sdb.URL = GetEnvOrDefault(EnvPrefix+"SURREALDB_URL", sdb.URL)
	sdb.Namespace = GetEnvOrDefault(EnvPrefix+"SURREALDB_NAMESPACE", sdb.Namespace)
	sdb.Database = GetEnvOrDefault(EnvPrefix+"SURREALDB_DATABASE", sdb.Database)
	sdb.Username = GetEnvOrDefault(EnvPrefix+"SURREALDB_USERNAME", sdb.Username)
	sdb.Password = GetEnvOrDefault(EnvPrefix+"SURREALDB_PASSWORD", sdb.Password)

	c.Bulk.ChunkSize = getEnvIntOrDefault(EnvPrefix+"BULK_CHUNK_SIZE", c.Bulk.ChunkSize)
	c.Bulk.Concurrency = getEnvIntOrDefault(EnvPrefix+"BULK_CONCURRENCY", c.Bulk.Concurrency)
	c.Search.PageSize = getEnvIntOrDefault(EnvPrefix+"SEARCH_PAGE_SIZE", c.Search.PageSize)
	c.Resolver.FetchBatch = getEnvIntOrDefault(EnvPrefix+"RESOLVER_FETCH_BATCH", c.Resolver.FetchBatch)

	c.Schemas.Dir = GetEnvOrDefault(EnvPrefix+"SCHEMAS_DIR", c.Schemas.Dir)
	c.Schemas.Pattern = GetEnvOrDefault(EnvPrefix+"SCHEMAS_PATTERN", c.Schemas.Pattern)

	c.Log.Level = GetEnvOrDefault(EnvPrefix+"LOG_LEVEL", c.Log.Level)
	c.Log.Path = GetEnvOrDefault(EnvPrefix+"LOG_PATH", c.Log.Path)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSurrealDB:
		if c.Store.SurrealDB.URL == "" {
			return fmt.Errorf("%w: store.surrealdb.url is required", constants.ErrValidation)
		}
		if c.Store.SurrealDB.Namespace == "" || c.Store.SurrealDB.Database == "" {
			return fmt.Errorf("%w: store.surrealdb namespace and database are required", constants.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", constants.ErrValidation, c.Store.Driver)
	}
	if c.Bulk.ChunkSize <= 0 {
		return fmt.Errorf("%w: bulk.chunkSize must be positive", constants.ErrValidation)
	}
	if c.Bulk.Concurrency <= 0 {
		return fmt.Errorf("%w: bulk.concurrency must be positive", constants.ErrValidation)
	}
	if c.Search.PageSize <= 0 || c.Search.PageSize > constants.MaxSearchPage {
		return fmt.Errorf("%w: search.pageSize must be between 1 and %d", constants.ErrValidation, constants.MaxSearchPage)
	}
	if c.Resolver.FetchBatch <= 0 {
		return fmt.Errorf("%w: resolver.fetchBatch must be positive", constants.ErrValidation)
	}
	return nil
}
