// Package config defines the service configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Fields are decoded from TOML over
// Defaults and then overridden by AMBY_* environment variables.
type Config struct {
	Owner    OwnerConfig    `toml:"owner"`
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Transfer TransferConfig `toml:"transfer"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	LogFile  string         `toml:"log_file"`
}

// OwnerConfig locates the key whose address is recorded as ledger owner.
type OwnerConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// Storage backends.
const (
	BackendLevelDB  = "leveldb"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// StorageConfig selects where ledger state lives.
type StorageConfig struct {
	Backend string `toml:"backend"`
	// Path is the database directory (leveldb) or file (bolt).
	Path string `toml:"path"`
}

// PostgresConfig holds connection parameters for the postgres backend and
// the audit log.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. When disabled the service
// falls back to in-process locks, bus and rate limiter.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
	CacheTTL   duration `toml:"cache_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig schedules snapshot exports.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"`
	Prefix  string `toml:"prefix"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	MetricsPath string   `toml:"metrics_path"`
}

// TransferConfig describes accepted inbound transfers.
type TransferConfig struct {
	// Asset is the identifier of the only accepted token.
	Asset      string   `toml:"asset"`
	HMACSecret string   `toml:"hmac_secret"`
	MaxSkew    duration `toml:"max_skew"`
}

// NotifyConfig holds chat alert credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration decodes TOML strings such as "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the configuration used for any field the file omits.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{
			Backend: BackendLevelDB,
			Path:    "data/ledger",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "amby",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			LockTTL:    duration{5 * time.Second},
			CacheTTL:   duration{30 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "amby-snapshots",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Cron:   "0 3 * * *",
			Prefix: "snapshots",
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
			MetricsPath: "/metrics",
		},
		Transfer: TransferConfig{
			MaxSkew: duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"market_created"},
		},
		Mode:     ModeServer,
		LogLevel: "info",
	}
}

// Run modes.
const (
	ModeServer  = "server"
	ModeArchive = "archive"
	ModeFull    = "full"
)

var validModes = map[string]bool{ModeServer: true, ModeArchive: true, ModeFull: true}

var validBackends = map[string]bool{BackendLevelDB: true, BackendBolt: true, BackendPostgres: true}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ServesHTTP reports whether the mode runs the API server.
func (c *Config) ServesHTTP() bool {
	return c.Mode == ModeServer || c.Mode == ModeFull
}

// Archives reports whether the mode runs the snapshot schedule.
func (c *Config) Archives() bool {
	return c.Archive.Enabled && (c.Mode == ModeArchive || c.Mode == ModeFull)
}

// NeedsPostgres reports whether any component uses the database.
func (c *Config) NeedsPostgres() bool {
	return c.Postgres.Enabled || c.Storage.Backend == BackendPostgres
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Owner.EncryptedKeyPath != "" && c.Owner.KeyPassword == "" {
		errs = append(errs, "owner: key_password is required when encrypted_key_path is set")
	}

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: leveldb, bolt, postgres)", c.Storage.Backend))
	}
	if c.Storage.Backend != BackendPostgres && c.Storage.Path == "" {
		errs = append(errs, "storage: path must not be empty for "+c.Storage.Backend)
	}

	if c.NeedsPostgres() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be positive")
		}
	}

	if c.Archive.Enabled {
		if c.Archive.Cron == "" {
			errs = append(errs, "archive: cron must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when archiving")
		}
	}

	if c.ServesHTTP() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
		if c.Transfer.Asset == "" {
			errs = append(errs, "transfer: asset must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
