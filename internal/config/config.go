// Package config loads service settings from environment variables and
// validates them at startup.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	GeoIP    GeoIPConfig
	Timezone TimezoneConfig
	Archive  ArchiveConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds every request except uploads, which are bounded
	// by UPLOAD_MAX_WAIT_TIME plus UPLOAD_TIMEOUT.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds PostgreSQL pool settings.
type DatabaseConfig struct {
	// URL accepts DATABASE_URL or DB_URL.
	URL             string        `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`
	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds upload processing settings.
type UploadConfig struct {
	MaxFileSize   int64         `env:"UPLOAD_MAX_FILE_SIZE" default:"33554432"` // 32MB
	MaxConcurrent int           `env:"UPLOAD_MAX_CONCURRENT" default:"5"`
	MaxWaitTime   time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
	Timeout       time.Duration `env:"UPLOAD_TIMEOUT" default:"5m"`

	// StrictParsing rejects empty or malformed uploads and unparsable rows
	// instead of skipping them.
	StrictParsing bool `env:"UPLOAD_STRICT_PARSING" default:"false"`

	// Delimiter is the single field separator character.
	Delimiter string `env:"UPLOAD_DELIMITER" default:","`
}

// DelimiterRune returns Delimiter as a rune.
func (u *UploadConfig) DelimiterRune() rune {
	for _, r := range u.Delimiter {
		return r
	}
	return ','
}

// RateLimitConfig holds per-IP rate limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
	UploadLimit       int  `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds proxy trust and header settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of CIDRs whose
	// X-Forwarded-For / X-Real-IP headers are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
	EnableCSP      bool     `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// GeoIPConfig configures the network-address timezone lookup.
type GeoIPConfig struct {
	// Token is the ipinfo.io access token; empty uses the anonymous tier.
	Token    string        `env:"IPINFO_TOKEN"`
	CacheTTL time.Duration `env:"IPINFO_CACHE_TTL" default:"1h"`
	Timeout  time.Duration `env:"IPINFO_TIMEOUT" default:"5s"`
}

// TimezoneConfig configures the coarse zone table.
type TimezoneConfig struct {
	// MapFile is an optional YAML overlay applied on the embedded table.
	MapFile string `env:"TIMEZONE_MAP_FILE"`

	// WatchMapFile reloads MapFile when it changes.
	WatchMapFile bool `env:"TIMEZONE_WATCH_MAP_FILE" default:"false"`
}

// ArchiveConfig configures raw upload archival to Cloud Storage.
// Archival is off when Bucket is empty.
type ArchiveConfig struct {
	Bucket          string `env:"ARCHIVE_BUCKET"`
	Prefix          string `env:"ARCHIVE_PREFIX" default:"uploads"`
	CredentialsFile string `env:"ARCHIVE_CREDENTIALS_FILE" envAlt:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// Enabled reports whether uploads are archived.
func (a *ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" default:"true"`
	Path    string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
