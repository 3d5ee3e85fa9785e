package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/mongo"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	"github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

// runtimeDependencies - хранилища, выбранные конфигурацией, и проверки их здоровья.
type runtimeDependencies struct {
	ledger     domain.OrderLedger
	outboxRepo domain.OutboxRepository
	blobs      domain.BlobStore
	customers  domain.CustomerStore
	catalog    domain.Catalog
	checkers   map[string]healthcheck.Checker
	closers    []func() error
}

// closeFn закрывает открытые подключения в обратном порядке.
func (d *runtimeDependencies) closeFn() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}

// initRuntimeDependencies открывает хранилища: журнал заказов по StorageDriver,
// Redis для корзин и покупателей при заданном адресе, in-memory реализации в остальных случаях.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}
	if err := deps.open(ctx, cfg, logger); err != nil {
		_ = deps.closeFn()
		return nil, err
	}
	return deps, nil
}

func (d *runtimeDependencies) open(ctx context.Context, cfg Config, logger *log.Entry) error {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		d.ledger = memory.NewOrderLedger()
		d.outboxRepo = memory.NewOutboxRepository()
	case StorageDriverPostgres:
		if err := initPostgres(ctx, cfg, d, logger); err != nil {
			return err
		}
	case StorageDriverMongo:
		if err := initMongo(ctx, cfg, d, logger); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		client, err := redis.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, client.Close)
		d.blobs = redis.NewBlobStore(client, cfg.CartTTL)
		d.customers = redis.NewCustomerStore(client)
		d.checkers["redis"] = redisChecker(client)
		logger.WithField("addr", cfg.RedisAddr).Info("redis cart and customer stores initialized")
	} else {
		d.blobs = memory.NewBlobStore()
		d.customers = memory.NewCustomerStore()
	}

	return initCatalog(ctx, cfg, d)
}

func initPostgres(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	if cfg.PostgresDSN == "" {
		return errors.New("postgres storage driver requires STOREFRONT_POSTGRES_DSN")
	}
	store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxConns(cfg.PostgresMaxConns))
	if err != nil {
		return err
	}
	deps.closers = append(deps.closers, store.Close)

	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			return fmt.Errorf("apply postgres migrations: %w", err)
		}
	}
	deps.ledger = postgres.NewOrderLedger(store)
	deps.outboxRepo = postgres.NewOutboxRepository(store)
	deps.checkers["postgres"] = healthcheck.NewPingChecker("postgres", store)
	logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("postgres order ledger initialized")
	return nil
}

func initMongo(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	if cfg.MongoURI == "" {
		return errors.New("mongo storage driver requires STOREFRONT_MONGO_URI")
	}
	store, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	deps.closers = append(deps.closers, func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return store.Close(closeCtx)
	})

	deps.ledger = mongo.NewOrderLedger(store)
	deps.outboxRepo = memory.NewOutboxRepository()
	deps.catalog = mongo.NewCatalog(store)
	deps.checkers["mongo"] = healthcheck.NewPingChecker("mongo", store)
	logger.WithField("database", cfg.MongoDatabase).Info("mongo order ledger and catalog initialized")
	return nil
}

// initCatalog загружает seed-файл в in-memory каталог либо дозаписывает его в Mongo.
func initCatalog(ctx context.Context, cfg Config, deps *runtimeDependencies) error {
	var seed *memory.Catalog
	if cfg.CatalogSeedFile != "" {
		loaded, err := memory.LoadCatalogFile(cfg.CatalogSeedFile)
		if err != nil {
			return err
		}
		seed = loaded
	}

	if mongoCatalog, ok := deps.catalog.(*mongo.Catalog); ok {
		if seed == nil {
			return nil
		}
		products, err := seed.List(ctx, "")
		if err != nil {
			return err
		}
		return mongoCatalog.Upsert(ctx, products...)
	}

	if seed == nil {
		empty, err := memory.NewCatalog()
		if err != nil {
			return err
		}
		seed = empty
	}
	deps.catalog = seed
	return nil
}

func redisChecker(client *goredis.Client) healthcheck.Checker {
	return healthcheck.NewSimpleChecker("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}
