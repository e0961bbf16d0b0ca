package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fastpartybox/internal/auth"
	"fastpartybox/internal/cache"
	"fastpartybox/internal/config"
	"fastpartybox/internal/domain"
	"fastpartybox/internal/events"
	httpapi "fastpartybox/internal/http"
	"fastpartybox/internal/localstore"
	"fastpartybox/internal/logger"
	"fastpartybox/internal/offline"
	"fastpartybox/internal/ratelimit"
	"fastpartybox/internal/repository"
	"fastpartybox/internal/service"
)

// app holds everything both commands share.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	store   repository.Store
	kv      localstore.KV
	pub     events.Publisher
	monitor *offline.Monitor
	coord   *offline.Coordinator
	session *auth.Session
	closers []func() error
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lc := logger.Config{
		Level:             cfg.Logger.Level,
		Encoding:          cfg.Logger.Encoding,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.IsDevelopment() {
		lc.IsDevelopment = true
		lc.Encoding = "console"
		lc.Level = "debug"
	}
	return logger.New(lc)
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, session: auth.NewSession()}

	switch cfg.Store.Driver {
	case "memory":
		a.store = repository.NewMemoryStore()
		log.Info("Using in-memory store")
	case "postgres":
		pg, err := repository.NewPostgresStore(ctx, repository.PostgresConfig{
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			DBName:          cfg.Postgres.DBName,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.store = pg
		log.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
	}

	switch cfg.Local.Driver {
	case "memory":
		a.kv = localstore.NewMemoryKV(int(cfg.Local.QuotaBytes))
	case "redis":
		kv, err := localstore.NewRedisKV(ctx, localstore.RedisConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			Prefix:     cfg.Redis.Prefix,
			QuotaBytes: cfg.Local.QuotaBytes,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, kv.Close)
		a.kv = kv
		log.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	default:
		_ = a.Close()
		return nil, fmt.Errorf("unknown LOCAL_DRIVER %q", cfg.Local.Driver)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		a.closers = append(a.closers, kp.Close)
		a.pub = kp
		log.Info("Publishing events to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	} else {
		a.pub = events.NopPublisher{}
	}

	a.monitor = offline.NewMonitor(a.store, cfg.Sync.ProbeInterval, log)
	a.coord = offline.NewCoordinator(a.store, a.kv, a.monitor, a.pub, log)
	return a, nil
}

func (a *app) server() *httpapi.Server {
	catalog := offline.NewCatalogSnapshot(a.kv)
	carts := offline.NewCartStore(a.kv, a.log)
	subs := service.NewSubscriptionService(a.store, a.store, cache.NewTTL[domain.Tier](a.cfg.Cache.TTL), a.log)

	return httpapi.NewServer(httpapi.Deps{
		Products:      service.NewProductService(a.store, subs, catalog, a.log),
		Orders:        service.NewOrderService(a.store, a.coord, a.monitor, carts, catalog, a.pub, a.log),
		Carts:         service.NewCartService(carts, a.store, catalog, a.monitor, a.log),
		Customers:     service.NewCustomerService(a.store, a.coord, a.pub, a.log),
		Dashboard: service.NewDashboardService(a.store, service.DashboardConfig{
			OrderScanLimit:   a.cfg.Dashboard.OrderScanLimit,
			ProductScanLimit: a.cfg.Dashboard.ProductScanLimit,
			TopProducts:      a.cfg.Dashboard.TopProducts,
		}),
		Subscriptions: subs,
		Coordinator:   a.coord,
		Monitor:       a.monitor,
		Session:       a.session,
		Limiter:       ratelimit.PerMinute(a.cfg.RateLimit.PerMinute),
		Log:           a.log,
	})
}

// Close releases connections in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
