package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load decodes the TOML file at path over Defaults, loads .env if present
// and applies AMBY_* overrides. A missing file is not an error, so the
// service can be configured from the environment alone. The result is not
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Owner.PrivateKey, "AMBY_OWNER_PRIVATE_KEY")
	setStr(&cfg.Owner.EncryptedKeyPath, "AMBY_OWNER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Owner.KeyPassword, "AMBY_OWNER_KEY_PASSWORD")

	setStr(&cfg.Storage.Backend, "AMBY_STORAGE_BACKEND")
	setStr(&cfg.Storage.Path, "AMBY_STORAGE_PATH")

	setBool(&cfg.Postgres.Enabled, "AMBY_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "AMBY_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "AMBY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AMBY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AMBY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AMBY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AMBY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AMBY_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AMBY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AMBY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AMBY_POSTGRES_RUN_MIGRATIONS")

	setBool(&cfg.Redis.Enabled, "AMBY_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "AMBY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AMBY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AMBY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AMBY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AMBY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AMBY_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "AMBY_REDIS_LOCK_TTL")
	setDuration(&cfg.Redis.CacheTTL, "AMBY_REDIS_CACHE_TTL")

	setStr(&cfg.S3.Endpoint, "AMBY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AMBY_S3_REGION")
	setStr(&cfg.S3.Bucket, "AMBY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AMBY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AMBY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AMBY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AMBY_S3_FORCE_PATH_STYLE")

	setBool(&cfg.Archive.Enabled, "AMBY_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "AMBY_ARCHIVE_CRON")
	setStr(&cfg.Archive.Prefix, "AMBY_ARCHIVE_PREFIX")

	setStr(&cfg.Server.Host, "AMBY_SERVER_HOST")
	setInt(&cfg.Server.Port, "AMBY_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AMBY_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "AMBY_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "AMBY_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "AMBY_SERVER_RATE_WINDOW")

	setStr(&cfg.Transfer.Asset, "AMBY_TRANSFER_ASSET")
	setStr(&cfg.Transfer.HMACSecret, "AMBY_TRANSFER_HMAC_SECRET")
	setDuration(&cfg.Transfer.MaxSkew, "AMBY_TRANSFER_MAX_SKEW")

	setStr(&cfg.Notify.TelegramToken, "AMBY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AMBY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AMBY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AMBY_NOTIFY_EVENTS")

	setStr(&cfg.Mode, "AMBY_MODE")
	setStr(&cfg.LogLevel, "AMBY_LOG_LEVEL")
	setStr(&cfg.LogFile, "AMBY_LOG_FILE")
}

// Each helper only touches dst when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
