package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server       ServerConfig        `mapstructure:"server"`
	Database     DatabaseConfig      `mapstructure:"database"`
	Archive      ArchiveConfig       `mapstructure:"archive"`
	Cache        CacheConfig         `mapstructure:"cache"`
	Logging      LoggingConfig       `mapstructure:"logging"`
	Engine       EngineConfig        `mapstructure:"engine"`
	Institutions []InstitutionConfig `mapstructure:"institutions"`
	MCP          MCPConfig           `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	TLSEnabled   bool          `mapstructure:"tls_enabled"`
	CertFile     string        `mapstructure:"cert_file"`
	KeyFile      string        `mapstructure:"key_file"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ArchiveConfig represents the image archive (Orthanc REST API) configuration
type ArchiveConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      int           `mapstructure:"rate_limit"`
	RetryCount     int           `mapstructure:"retry_count"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`
	BreakerTrips   int           `mapstructure:"breaker_trips"`
}

// CacheConfig represents the processed-instance tracker configuration
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	MaxItems    int           `mapstructure:"max_items"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// EngineConfig holds switches of the interpretation engine
type EngineConfig struct {
	// RecordZeroHipChange records a hip change of exactly 0.000 g/cm2 as not significant.
	// Lumbar spine zero deltas are always recorded.
	RecordZeroHipChange bool `mapstructure:"record_zero_hip_change"`
}

// InstitutionConfig adds or overrides a least significant change row
type InstitutionConfig struct {
	Name         string  `mapstructure:"name" yaml:"name"`
	Abbreviation string  `mapstructure:"abbreviation" yaml:"abbreviation"`
	SpineLSC     float64 `mapstructure:"spine_lsc" yaml:"spine_lsc"`
	HipLSC       float64 `mapstructure:"hip_lsc" yaml:"hip_lsc"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
