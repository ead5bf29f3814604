package main

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/lendops/modules/assignments/infrastructure/persistence"
	"github.com/iota-uz/lendops/modules/assignments/infrastructure/rediscache"
	"github.com/iota-uz/lendops/modules/assignments/infrastructure/sqlite"
	"github.com/iota-uz/lendops/modules/assignments/services"
	"github.com/iota-uz/lendops/pkg/composables"
	"github.com/iota-uz/lendops/pkg/configuration"
	"github.com/iota-uz/lendops/pkg/eventbus"
	"github.com/iota-uz/lendops/pkg/logging"
)

type catalogWriter interface {
	UpsertEntity(ctx context.Context, id uuid.UUID, name string) error
	UpsertOwner(ctx context.Context, id uuid.UUID, name string) error
}

type store interface {
	services.Repository
	services.Catalog
	services.Transactor
}

// pgStore bundles the stateless PostgreSQL repositories into one store.
type pgStore struct {
	*persistence.AssignmentRepository
	*persistence.CatalogRepository
	persistence.Transactor
}

type app struct {
	ctx     context.Context
	conf    *configuration.Configuration
	opts    configuration.AssignmentsOptions
	logger  *logrus.Logger
	store   store
	catalog catalogWriter
	bus     eventbus.EventBus
	svc     *services.AssignmentHistoryService
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func resolveOptions(conf *configuration.Configuration, flags *rootOptions) (configuration.AssignmentsOptions, error) {
	opts := conf.Assignments
	if flags.backend != "" {
		opts.Backend = flags.backend
	}
	if flags.sqlitePath != "" {
		opts.SQLitePath = flags.sqlitePath
	}
	if flags.cache != "" {
		opts.Cache = flags.cache
	}
	if flags.metricsURL != "" {
		opts.MetricsPushURL = flags.metricsURL
	}
	if err := opts.Validate(); err != nil {
		return opts, withCode(exitValidation, err)
	}
	return opts, nil
}

func appLogger(conf *configuration.Configuration) *logrus.Logger {
	if logger := conf.Logger(); logger != nil {
		return logger
	}
	return logging.ConsoleLogger(conf.LogrusLogLevel())
}

func openApp(ctx context.Context, flags *rootOptions) (*app, error) {
	conf := configuration.Use()
	opts, err := resolveOptions(conf, flags)
	if err != nil {
		return nil, err
	}
	logger := appLogger(conf)
	a := &app{
		conf:   conf,
		opts:   opts,
		logger: logger,
		ctx:    composables.WithLogger(ctx, logrus.NewEntry(logger)),
	}

	if conf.OpenTelemetry.Enabled {
		a.closers = append(a.closers, logging.SetupTracing(a.ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL))
	}

	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}
	cache, err := a.openCache()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.bus = eventbus.New(logger)
	a.bus.Subscribe(func(ev *services.AssignmentChangedEvent) {
		logger.WithFields(logrus.Fields{
			"operation": ev.Operation,
			"entity_id": ev.EntityID.String(),
			"owner_id":  ev.OwnerID.String(),
			"record_id": ev.RecordID.String(),
		}).Info("assignments.changed")
	})

	a.svc = services.NewAssignmentHistoryService(a.store, a.store, a.store,
		services.WithCache(cache),
		services.WithEventBus(a.bus),
		services.WithMaxBatchSize(opts.MaxBatchSize),
		services.WithCurrentOwnerSync(opts.SyncCurrentOwner),
	)
	return a, nil
}

func (a *app) openStore() error {
	switch a.opts.Backend {
	case configuration.BackendSQLite:
		s, err := sqlite.Open(a.opts.SQLitePath)
		if err != nil {
			return withCode(exitDB, errors.Wrap(err, "open sqlite store"))
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		a.store, a.catalog = s, s
	default:
		pool, err := pgxpool.New(a.ctx, a.conf.Database.ConnectionString())
		if err != nil {
			return withCode(exitDB, errors.Wrap(err, "db connect failed"))
		}
		a.closers = append(a.closers, pool.Close)
		a.ctx = composables.WithPool(a.ctx, pool)
		pg := pgStore{
			AssignmentRepository: persistence.NewAssignmentRepository(),
			CatalogRepository:    persistence.NewCatalogRepository(),
			Transactor:           persistence.NewTransactor(),
		}
		a.store, a.catalog = pg, pg.CatalogRepository
	}
	return nil
}

func (a *app) openCache() (services.CurrentOwnerCache, error) {
	switch a.opts.Cache {
	case configuration.CacheMemory:
		return services.NewMemoryCurrentOwnerCache(a.opts.CacheTTL, a.opts.CacheTTL), nil
	case configuration.CacheRedis:
		client, err := redisClient(a.conf.RedisURL)
		if err != nil {
			return nil, withCode(exitValidation, err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return rediscache.NewCurrentOwnerCache(client, a.opts.CachePrefix, a.opts.CacheTTL), nil
	default:
		return nil, nil
	}
}

// redisClient accepts either a redis:// URL or a bare host:port.
func redisClient(raw string) (*redis.Client, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, errors.Wrap(err, "parse REDIS_URL")
		}
		return redis.NewClient(opts), nil
	}
	if raw == "" {
		return nil, errors.New("REDIS_URL is required when ASSIGNMENTS_CACHE is 'redis'")
	}
	return redis.NewClient(&redis.Options{Addr: raw}), nil
}

func runWithApp(ctx context.Context, flags *rootOptions, fn func(a *app) error) error {
	a, err := openApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.Close()
	err = fn(a)
	a.pushMetrics()
	return err
}
