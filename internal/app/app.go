// Package app wires configuration into the running dispatch stack shared by
// the server and the command-line dispatcher.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/textdispatch/internal/audit"
	"github.com/ignite/textdispatch/internal/chatdb"
	"github.com/ignite/textdispatch/internal/config"
	"github.com/ignite/textdispatch/internal/datanorm"
	"github.com/ignite/textdispatch/internal/delivery"
	"github.com/ignite/textdispatch/internal/dispatch"
	"github.com/ignite/textdispatch/internal/events"
	"github.com/ignite/textdispatch/internal/mailing"
	"github.com/ignite/textdispatch/internal/pkg/distlock"
	"github.com/ignite/textdispatch/internal/pkg/logger"
	"github.com/ignite/textdispatch/internal/repository/memory"
	"github.com/ignite/textdispatch/internal/repository/postgres"
	redisrepo "github.com/ignite/textdispatch/internal/repository/redis"
	"github.com/ignite/textdispatch/internal/sender"
	"github.com/ignite/textdispatch/internal/service/batch"
	"github.com/ignite/textdispatch/internal/service/sending"
	"github.com/ignite/textdispatch/internal/storage"
)

// App holds the wired components. Optional backends are nil when not
// configured.
type App struct {
	Config       *config.Config
	ChatDB       *chatdb.Store
	DB           *sql.DB
	Redis        *redis.Client
	Logs         storage.ArtifactStore
	Phones       *datanorm.PhoneNormalizer
	Composer     *mailing.Composer
	Orchestrator *dispatch.Orchestrator
	Batches      *batch.Service
	MemoryRepo   *memory.BatchRepo

	closers []func() error
}

// New builds the application from cfg. Connection failures of optional
// backends are fatal so a misconfigured deployment does not silently
// degrade.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.Configure(cfg.Logging.Level, cfg.Logging.Console, !cfg.Logging.DisableRedaction)

	a := &App{
		Config:   cfg,
		Phones:   datanorm.NewPhoneNormalizer(cfg.Dispatch.DefaultCountryCode),
		Composer: mailing.NewComposer(nil),
	}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	logs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	a.Logs = logs

	store, err := chatdb.Open(cfg.ChatDB.Path)
	if err != nil {
		return err
	}
	a.ChatDB = store
	a.closers = append(a.closers, store.Close)
	logger.Info("chat.db configured", "path", store.Path())

	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetConnMaxLifetime(30 * time.Minute)
		a.DB = db
		a.closers = append(a.closers, db.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		logger.Info("postgres connected")
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			opts = &redis.Options{Addr: cfg.Redis.URL}
		}
		a.Redis = redis.NewClient(opts)
		a.closers = append(a.closers, a.Redis.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := a.Redis.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("redis connected", "addr", a.Redis.Options().Addr)
	}

	deps := dispatch.Deps{
		Observer: delivery.NewObserver(store, delivery.Config{
			MaxWait:  cfg.Dispatch.MaxWait(),
			Interval: cfg.Dispatch.PollInterval(),
		}),
		Audit: audit.NewWriter(logs),
	}

	switch cfg.Sender.Type {
	case "osascript":
		deps.Sender = sender.NewOSAScriptSender(sender.Config{
			Binary:  cfg.Sender.Binary,
			Timeout: cfg.Sender.Timeout(),
		}, nil)
	case "none":
		logger.Warn("sender disabled, only dry runs are possible")
	default:
		return fmt.Errorf("unknown sender type %q", cfg.Sender.Type)
	}

	var archive *postgres.SendResultRepo
	if a.DB != nil && cfg.Database.ArchiveResults {
		archive = postgres.NewSendResultRepo(a.DB)
		if err := archive.EnsureSchema(ctx); err != nil {
			return err
		}
		deps.Archive = archive
	}

	if cfg.Events.Enabled && cfg.Events.AMQPURL != "" {
		pub, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange, cfg.Events.RoutingKey)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pub.Close)
		deps.Publisher = pub
		logger.Info("publishing send results", "exchange", cfg.Events.Exchange, "routing_key", cfg.Events.RoutingKey)
	} else {
		deps.Publisher = events.NopPublisher{}
	}

	a.Orchestrator = dispatch.NewOrchestrator(deps)

	repo, err := a.batchRepo()
	if err != nil {
		return err
	}

	batchDeps := batch.Deps{
		Repo:         repo,
		Orchestrator: a.Orchestrator,
		Importer:     datanorm.NewImporter(a.Phones),
		Composer:     a.Composer,
		Phones:       a.Phones,
		NewLock:      distlock.Factory(a.Redis, a.DB, cfg.Dispatch.LockKey, cfg.Dispatch.LockTTL()),
	}
	if archive != nil {
		batchDeps.Archive = archive
	}
	a.Batches = batch.NewService(batchDeps, batch.Config{
		Defaults: a.SendDefaults(),
		LockTTL:  cfg.Dispatch.LockTTL(),
	})
	return nil
}

func (a *App) batchRepo() (batch.Repository, error) {
	cfg := a.Config.Batches
	switch cfg.Store {
	case "memory":
		a.MemoryRepo = memory.NewBatchRepo(cfg.TTL(), cfg.MaxEntries)
		return a.MemoryRepo, nil
	case "redis":
		if a.Redis == nil {
			return nil, fmt.Errorf("batches.store is redis but no redis url is configured")
		}
		return redisrepo.NewBatchRepo(a.Redis, a.Config.Redis.KeyPrefix, cfg.TTL()), nil
	default:
		return nil, fmt.Errorf("unknown batch store %q", cfg.Store)
	}
}

// SendDefaults returns the configured per-batch send options.
func (a *App) SendDefaults() dispatch.Options {
	d := a.Config.Dispatch
	return dispatch.Options{
		DryRun:   d.DryRun,
		DelayMin: d.DelayMin(),
		DelayMax: d.DelayMax(),
		MaxWait:  d.MaxWait(),
	}
}

// NewLock returns a fresh dispatch lock for callers outside the batch
// service.
func (a *App) NewLock() distlock.DistLock {
	return distlock.NewLock(a.Redis, a.DB, a.Config.Dispatch.LockKey, a.Config.Dispatch.LockTTL())
}

// Close releases every opened backend in reverse order.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

var _ sending.ResultArchive = (*postgres.SendResultRepo)(nil)
