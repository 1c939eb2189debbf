package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	s3blob "github.com/alanyoungcy/amby/internal/blob/s3"
	"github.com/alanyoungcy/amby/internal/cache/redis"
	"github.com/alanyoungcy/amby/internal/config"
	"github.com/alanyoungcy/amby/internal/crypto"
	"github.com/alanyoungcy/amby/internal/domain"
	"github.com/alanyoungcy/amby/internal/events"
	"github.com/alanyoungcy/amby/internal/ledger"
	"github.com/alanyoungcy/amby/internal/metrics"
	"github.com/alanyoungcy/amby/internal/notify"
	"github.com/alanyoungcy/amby/internal/server/handler"
	"github.com/alanyoungcy/amby/internal/server/middleware"
	boltstore "github.com/alanyoungcy/amby/internal/store/bolt"
	"github.com/alanyoungcy/amby/internal/store/leveldb"
	"github.com/alanyoungcy/amby/internal/store/postgres"
)

// Dependencies bundles everything the run modes need. It is built by Wire
// and torn down by the cleanup function Wire returns.
type Dependencies struct {
	KV         domain.KVStore
	Engine     *ledger.Engine
	Dispatcher *events.Dispatcher
	Metrics    *metrics.Ledger

	// Bus is Redis pub/sub when Redis is enabled, otherwise in-process.
	Bus     domain.SignalBus
	Limiter domain.RateLimiter
	// Cache is nil without Redis.
	Cache domain.MarketCache
	// Audit is nil without Postgres.
	Audit domain.AuditStore

	// Blobs and Archiver are nil unless archiving is enabled.
	Blobs    *s3blob.Reader
	Archiver *s3blob.Archiver
	Notifier *notify.Notifier

	// Pingers are reported by the health check.
	Pingers map[string]handler.Pinger
}

// Wire builds every dependency selected by cfg. On error anything already
// opened is closed before returning.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Dependencies, cleanup func(), err error) {
	var closers []func()
	cleanup = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	defer func() {
		if err != nil {
			cleanup()
		}
	}()

	deps := &Dependencies{
		Metrics: metrics.Default(),
		Pingers: make(map[string]handler.Pinger),
	}

	// Postgres
	var pg *postgres.Client
	if cfg.NeedsPostgres() {
		pg, err = postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err = pg.RunMigrations(ctx); err != nil {
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Audit = postgres.NewAuditStore(pg.Pool())
		deps.Pingers["postgres"] = pg
	}

	// Ledger storage
	if deps.KV, err = openKV(cfg, pg); err != nil {
		return nil, nil, err
	}
	closers = append(closers, func() {
		if err := deps.KV.Close(); err != nil {
			logger.Warn("close ledger store", slog.String("error", err.Error()))
		}
	})

	// Redis, or in-process fallbacks
	var lockManager domain.LockManager
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		deps.Bus = redis.NewSignalBus(rc)
		deps.Limiter = redis.NewRateLimiter(rc)
		deps.Cache = redis.NewMarketCache(rc, cfg.Redis.CacheTTL.Duration)
		lockManager = redis.NewLockManager(rc)
		deps.Pingers["redis"] = rc
	} else {
		deps.Bus = events.NewLocalBus()
		deps.Limiter = middleware.NewLocalLimiter()
	}

	// Notifications
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// Event fan-out
	opts := []events.Option{events.WithBus(deps.Bus), events.WithMetrics(deps.Metrics)}
	if deps.Audit != nil {
		opts = append(opts, events.WithAudit(deps.Audit))
	}
	if deps.Cache != nil {
		opts = append(opts, events.WithCache(deps.Cache))
	}
	if deps.Notifier.Enabled() {
		opts = append(opts, events.WithNotifier(deps.Notifier))
	}
	deps.Dispatcher = events.NewDispatcher(logger, opts...)

	// Engine
	engineOpts := []ledger.Option{ledger.WithLogger(logger), ledger.WithEventSink(deps.Dispatcher)}
	if lockManager != nil {
		engineOpts = append(engineOpts, ledger.WithLockManager(lockManager, cfg.Redis.LockTTL.Duration))
	}
	deps.Engine = ledger.NewEngine(deps.KV, engineOpts...)

	if err = bootstrapOwner(ctx, cfg, deps.Engine, logger); err != nil {
		return nil, nil, err
	}

	// Snapshot archive
	if cfg.Archive.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Blobs = s3blob.NewReader(sc)
		deps.Archiver = s3blob.NewArchiver(deps.Engine, s3blob.NewWriter(sc), deps.Audit, cfg.Archive.Prefix, logger)
		deps.Pingers["s3"] = sc
	}

	return deps, cleanup, nil
}

func openKV(cfg *config.Config, pg *postgres.Client) (domain.KVStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendLevelDB:
		kv, err := leveldb.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("wire: leveldb: %w", err)
		}
		return kv, nil
	case config.BackendBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o750); err != nil {
			return nil, fmt.Errorf("wire: bolt dir: %w", err)
		}
		kv, err := boltstore.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("wire: bolt: %w", err)
		}
		return kv, nil
	case config.BackendPostgres:
		if pg == nil {
			return nil, errors.New("wire: postgres backend selected without a postgres client")
		}
		return postgres.NewKVStore(pg.Pool()), nil
	default:
		return nil, fmt.Errorf("wire: unknown storage backend %q", cfg.Storage.Backend)
	}
}

// bootstrapOwner records the configured owner on first start. Without an
// owner key the ledger still serves but Owner reports not found.
func bootstrapOwner(ctx context.Context, cfg *config.Config, engine *ledger.Engine, logger *slog.Logger) error {
	if cfg.Owner.PrivateKey == "" && cfg.Owner.EncryptedKeyPath == "" {
		logger.WarnContext(ctx, "no owner key configured, skipping bootstrap")
		return nil
	}
	owner, err := crypto.OwnerAddress(crypto.KeyConfig{
		RawPrivateKey:    cfg.Owner.PrivateKey,
		EncryptedKeyPath: cfg.Owner.EncryptedKeyPath,
		KeyPassword:      cfg.Owner.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("wire: owner key: %w", err)
	}
	if err := engine.Bootstrap(ctx, owner); err != nil {
		return fmt.Errorf("wire: bootstrap: %w", err)
	}
	logger.InfoContext(ctx, "ledger owner", slog.String("owner", owner.Hex()))
	return nil
}
