// Package config loads FileFlow settings from an optional YAML file and
// FILEFLOW_* environment variables, on top of defaults for every key.
//
// Environment variables map to keys by upper-casing and replacing dots with
// underscores: vector.qdrant.addr is FILEFLOW_VECTOR_QDRANT_ADDR.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "FILEFLOW"

// Security modes.
const (
	SecurityDevelopment = "development"
	SecurityProduction  = "production"
)

// Vector backend names, in default selection order.
const (
	BackendQdrant   = "qdrant"
	BackendPgvector = "pgvector"
	BackendSQLite   = "sqlite"
)

// Config holds all configuration settings for FileFlow.
type Config struct {
	Watch        WatchConfig        `mapstructure:"watch"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Vector       VectorConfig       `mapstructure:"vector"`
	Intelligence IntelligenceConfig `mapstructure:"intelligence"`
	Extractor    ExtractorConfig    `mapstructure:"extractor"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Activity     ActivityConfig     `mapstructure:"activity"`
}

// WatchConfig controls the folder monitor.
type WatchConfig struct {
	Dir           string        `mapstructure:"dir"`
	Recursive     bool          `mapstructure:"recursive"`
	Extensions    []string      `mapstructure:"extensions"`
	RecencyWindow time.Duration `mapstructure:"recency_window"`
	Debounce      time.Duration `mapstructure:"debounce"`
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
}

// StorageConfig locates the record store and its snapshots.
type StorageConfig struct {
	DataPath string `mapstructure:"data_path"`

	// BackupDir defaults to {DataPath}/backups.
	BackupDir  string `mapstructure:"backup_dir"`
	BackupKeep int    `mapstructure:"backup_keep"`
}

// DatabasePath is the SQLite record store file inside DataPath.
func (s StorageConfig) DatabasePath() string {
	return filepath.Join(s.DataPath, "fileflow.db")
}

// BackupPath is the snapshot directory.
func (s StorageConfig) BackupPath() string {
	if s.BackupDir != "" {
		return s.BackupDir
	}
	return filepath.Join(s.DataPath, "backups")
}

// VectorConfig selects and configures the vector backends. Backends lists
// the candidates in the order they are tried.
type VectorConfig struct {
	Dimension int            `mapstructure:"dimension"`
	Backends  []string       `mapstructure:"backends"`
	Qdrant    QdrantConfig   `mapstructure:"qdrant"`
	Postgres  PostgresConfig `mapstructure:"postgres"`
	SQLite    SQLiteConfig   `mapstructure:"sqlite"`

	// ConnectTimeout bounds each candidate's connection probe.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// QdrantConfig configures the Qdrant backend. An empty Addr disables it.
type QdrantConfig struct {
	Addr       string `mapstructure:"addr"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

// PostgresConfig configures the pgvector backend. An empty DSN disables it.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// SQLiteConfig configures the fallback backend. An empty Path places the
// vectors next to the record store.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// IntelligenceConfig configures the OpenAI-compatible API.
type IntelligenceConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	ChatModel         string        `mapstructure:"chat_model"`
	EmbeddingModel    string        `mapstructure:"embedding_model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// Enabled reports whether an endpoint is usable. The public endpoint needs a
// key; a custom base URL (a local server) does not.
func (c IntelligenceConfig) Enabled() bool {
	return c.APIKey != "" || (c.BaseURL != "" && c.BaseURL != defaultIntelligenceURL)
}

// ExtractorConfig configures content extraction. An empty TikaURL limits
// extraction to plain-text formats.
type ExtractorConfig struct {
	TikaURL      string        `mapstructure:"tika_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxTextBytes int64         `mapstructure:"max_text_bytes"`
	MaxChars     int           `mapstructure:"max_chars"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	SecurityMode string `mapstructure:"security_mode"`
	APIToken     string `mapstructure:"api_token"`

	// RateLimit is requests per second across the API; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig configures pkg/log.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ActivityConfig controls activity log retention.
type ActivityConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

const defaultIntelligenceURL = "https://api.openai.com"

func setDefaults(v *viper.Viper) {
	v.SetDefault("watch.dir", "./watched")
	v.SetDefault("watch.recursive", true)
	v.SetDefault("watch.extensions", []string{
		".pdf", ".docx", ".doc", ".txt", ".md", ".jpg", ".jpeg", ".png", ".bmp", ".tiff",
	})
	v.SetDefault("watch.recency_window", time.Hour)
	v.SetDefault("watch.debounce", 500*time.Millisecond)
	v.SetDefault("watch.workers", 2)
	v.SetDefault("watch.queue_size", 100)

	v.SetDefault("storage.data_path", "./data")
	v.SetDefault("storage.backup_dir", "")
	v.SetDefault("storage.backup_keep", 10)

	v.SetDefault("vector.dimension", 1536)
	v.SetDefault("vector.backends", []string{BackendQdrant, BackendPgvector, BackendSQLite})
	v.SetDefault("vector.connect_timeout", 5*time.Second)
	v.SetDefault("vector.qdrant.addr", "")
	v.SetDefault("vector.qdrant.collection", "fileflow_vectors")
	v.SetDefault("vector.qdrant.api_key", "")
	v.SetDefault("vector.qdrant.use_tls", false)
	v.SetDefault("vector.postgres.dsn", "")
	v.SetDefault("vector.postgres.table", "fileflow_vectors")
	v.SetDefault("vector.sqlite.path", "")

	v.SetDefault("intelligence.base_url", defaultIntelligenceURL)
	v.SetDefault("intelligence.api_key", "")
	v.SetDefault("intelligence.chat_model", "gpt-4o-mini")
	v.SetDefault("intelligence.embedding_model", "text-embedding-3-small")
	v.SetDefault("intelligence.timeout", 60*time.Second)
	v.SetDefault("intelligence.requests_per_second", 2.0)

	v.SetDefault("extractor.tika_url", "")
	v.SetDefault("extractor.timeout", 60*time.Second)
	v.SetDefault("extractor.max_text_bytes", int64(1<<20))
	v.SetDefault("extractor.max_chars", 100000)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 6464)
	v.SetDefault("server.security_mode", SecurityDevelopment)
	v.SetDefault("server.api_token", "")
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "")

	v.SetDefault("activity.retention_days", 90)
}

// Load reads configFile when non-empty, applies FILEFLOW_* overrides and
// validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Watch.Dir) == "" {
		errs = append(errs, errors.New("watch.dir is required"))
	}
	if c.Watch.Workers <= 0 {
		errs = append(errs, fmt.Errorf("watch.workers must be positive, got %d", c.Watch.Workers))
	}
	if c.Watch.RecencyWindow < 0 {
		errs = append(errs, errors.New("watch.recency_window must not be negative"))
	}
	if strings.TrimSpace(c.Storage.DataPath) == "" {
		errs = append(errs, errors.New("storage.data_path is required"))
	}
	if c.Storage.BackupKeep < 0 {
		errs = append(errs, errors.New("storage.backup_keep must not be negative"))
	}
	if c.Vector.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("vector.dimension must be positive, got %d", c.Vector.Dimension))
	}
	if len(c.Vector.Backends) == 0 {
		errs = append(errs, errors.New("vector.backends must name at least one backend"))
	}
	for _, b := range c.Vector.Backends {
		switch strings.ToLower(strings.TrimSpace(b)) {
		case BackendQdrant, BackendPgvector, BackendSQLite:
		default:
			errs = append(errs, fmt.Errorf("vector.backends: unknown backend %q", b))
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch c.Server.SecurityMode {
	case SecurityDevelopment:
	case SecurityProduction:
		if c.Server.APIToken == "" {
			errs = append(errs, errors.New("server.api_token is required in production security mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("server.security_mode must be %q or %q, got %q",
			SecurityDevelopment, SecurityProduction, c.Server.SecurityMode))
	}
	if c.Activity.RetentionDays < 0 {
		errs = append(errs, errors.New("activity.retention_days must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
