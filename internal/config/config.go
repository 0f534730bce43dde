// Package config provides unified configuration loading for the venue engine.
// Supports YAML files, a .env file, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the venue engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Vector        VectorConfig        `yaml:"vector"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Inputs        InputsConfig        `yaml:"inputs"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	SearchRateLimit  float64       `yaml:"search_rate_limit"` // requests per second, 0 disables
	SearchBurst      int           `yaml:"search_burst"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// VectorConfig holds vector store settings.
type VectorConfig struct {
	Adapter   string     `yaml:"adapter"` // pgvector or bolt
	Dimension int        `yaml:"dimension"`
	Bolt      BoltConfig `yaml:"bolt"`
}

// BoltConfig holds settings for the local bbolt vector file.
type BoltConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig holds query cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// EmbeddingConfig holds embedding service settings.
type EmbeddingConfig struct {
	Provider       string        `yaml:"provider"` // openai or mock
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"-"`
	Model          string        `yaml:"model"`
	Dimension      int           `yaml:"dimension"`
	MaxChars       int           `yaml:"max_chars"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	CallDelay      time.Duration `yaml:"call_delay"`
	ContentType    string        `yaml:"content_type"`
	SkipUnchanged  bool          `yaml:"skip_unchanged"` // skip venues whose content hash did not change
}

// RetrievalConfig holds search settings.
type RetrievalConfig struct {
	DefaultLimit      int           `yaml:"default_limit"`
	MaxLimit          int           `yaml:"max_limit"`
	NeighborhoodBoost float64       `yaml:"neighborhood_boost"`
	AdjacentBoost     float64       `yaml:"adjacent_boost"`
	MinResults        int           `yaml:"min_results"`
	CacheResults      bool          `yaml:"cache_results"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	EntityRecognition bool          `yaml:"entity_recognition"`
}

// InputsConfig names the raw source files consumed by the reconciler.
// Every path except Base is optional.
type InputsConfig struct {
	Base      string `yaml:"base"`
	Google    string `yaml:"google"`
	OpenTable string `yaml:"opentable"`
	OSM       string `yaml:"osm"`
	Website   string `yaml:"website"`
	Resy      string `yaml:"resy"`
	Output    string `yaml:"output"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies .env and environment overrides.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		cfg.Inputs = resolveInputs(path, cfg.Inputs)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   30 * time.Second,
			GracefulShutdown: 10 * time.Second,
			SearchRateLimit:  5,
			SearchBurst:      10,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "venues.db",
				MaxOpenConns: 1,
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Vector: VectorConfig{
			Adapter:   "bolt",
			Dimension: 1536,
			Bolt: BoltConfig{
				Path: "venues.vectors.db",
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 1000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:       "openai",
			BaseURL:        "https://api.openai.com/v1",
			Model:          "text-embedding-ada-002",
			Dimension:      1536,
			MaxChars:       25000,
			Timeout:        30 * time.Second,
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     30 * time.Second,
			CallDelay:      500 * time.Millisecond,
			ContentType:    "combined",
		},
		Retrieval: RetrievalConfig{
			DefaultLimit:      5,
			MaxLimit:          50,
			NeighborhoodBoost: 1.5,
			AdjacentBoost:     1.2,
			MinResults:        3,
			CacheResults:      true,
			CacheTTL:          5 * time.Minute,
			EntityRecognition: true,
		},
		Inputs: InputsConfig{
			Base:      "places.csv",
			Google:    "places_with_google_data.csv",
			OpenTable: "opentable_results.csv",
			OSM:       "places_with_osm.csv",
			Website:   "scraped_data.json",
			Resy:      "resy_data.json",
			Output:    "cleaned_integrated_data.json",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "console",
			ServiceName: "venue-engine",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires a dsn")
	}

	if c.Vector.Adapter != "pgvector" && c.Vector.Adapter != "bolt" {
		return fmt.Errorf("invalid vector adapter: %s", c.Vector.Adapter)
	}

	if c.Vector.Adapter == "pgvector" && c.Database.Driver != "postgres" {
		return fmt.Errorf("pgvector adapter requires the postgres driver")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Embedding.Provider != "openai" && c.Embedding.Provider != "mock" {
		return fmt.Errorf("invalid embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.MaxAttempts < 1 {
		return fmt.Errorf("embedding max_attempts must be at least 1")
	}

	if c.Retrieval.NeighborhoodBoost <= 1.0 {
		return fmt.Errorf("neighborhood_boost must be greater than 1.0")
	}

	if c.Retrieval.AdjacentBoost < 1.0 || c.Retrieval.AdjacentBoost >= c.Retrieval.NeighborhoodBoost {
		return fmt.Errorf("adjacent_boost must be in [1.0, neighborhood_boost)")
	}

	if c.Retrieval.DefaultLimit < 1 || c.Retrieval.DefaultLimit > c.Retrieval.MaxLimit {
		return fmt.Errorf("default_limit must be between 1 and max_limit")
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("VECTOR_ADAPTER"); v != "" {
		cfg.Vector.Adapter = v
	}

	if v := os.Getenv("VECTOR_BOLT_PATH"); v != "" {
		cfg.Vector.Bolt.Path = v
	}

	// OPENAI_KEY is the name the scraping scripts already export.
	for _, key := range []string{"EMBEDDING_API_KEY", "OPENAI_API_KEY", "OPENAI_KEY"} {
		if v := os.Getenv(key); v != "" {
			cfg.Embedding.APIKey = v
			break
		}
	}

	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

func resolveInputs(configPath string, in InputsConfig) InputsConfig {
	resolve := func(p string) string {
		if p == "" {
			return p
		}
		return ResolveRelativePath(configPath, p)
	}
	return InputsConfig{
		Base:      resolve(in.Base),
		Google:    resolve(in.Google),
		OpenTable: resolve(in.OpenTable),
		OSM:       resolve(in.OSM),
		Website:   resolve(in.Website),
		Resy:      resolve(in.Resy),
		Output:    resolve(in.Output),
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	return filepath.Join(filepath.Dir(configPath), targetPath)
}
