package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"quotes-service/internal/application"
	"quotes-service/internal/config"
	"quotes-service/internal/domain"
	"quotes-service/internal/infrastructure/cache"
	"quotes-service/internal/infrastructure/httpx"
	"quotes-service/internal/infrastructure/logx"
	"quotes-service/internal/infrastructure/memory"
	"quotes-service/internal/infrastructure/pg"
	"quotes-service/internal/infrastructure/provider"
	redisstore "quotes-service/internal/infrastructure/redis"
	"quotes-service/internal/infrastructure/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrMissingDBURL  = errors.New("DATABASE_URL is required for STORAGE=pg")
	ErrUnknownOption = errors.New("unknown option")
)

type readyCheck func(ctx context.Context) error

// Storage is the update repository plus its transaction boundary.
type Storage struct {
	Updates application.QuoteUpdateRepo
	UoW     application.UnitOfWork
	DB      *pg.DB
}

func ProvideLogger() *zap.Logger { return logx.L() }

func ProvideConfig() config.Config { return config.Load() }

func ProvideDB(ctx context.Context, log *zap.Logger, cfg config.Config) (*pg.DB, func(), error) {
	dbURL := cfg.DatabaseURL
	if dbURL == "" {
		return nil, func() {}, ErrMissingDBURL
	}
	db, err := pg.Connect(ctx, dbURL)
	if err != nil {
		return nil, func() {}, err
	}
	if err := pg.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, func() {}, err
	}
	cleanup := func() {
		if log != nil {
			log.Info("closing pg")
		}
		db.Close()
	}
	return db, cleanup, nil
}

func ProvideStorage(ctx context.Context, log *zap.Logger, cfg config.Config) (Storage, func(), error) {
	switch cfg.Storage {
	case "memory":
		return Storage{Updates: memory.NewQuoteUpdateRepo(), UoW: application.NoopUoW{}}, func() {}, nil
	case "pg":
		db, cleanup, err := ProvideDB(ctx, log, cfg)
		if err != nil {
			return Storage{}, cleanup, err
		}
		return Storage{Updates: pg.NewQuoteUpdateRepo(db), UoW: pg.NewUnitOfWork(db), DB: db}, cleanup, nil
	default:
		return Storage{}, func() {}, fmt.Errorf("%w: STORAGE=%q", ErrUnknownOption, cfg.Storage)
	}
}

func ProvideRedisClient(cfg config.Config) (*redis.Client, func(), error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }, nil
}

// ProvideIdempotency picks the key store. The pg store relies on the pg
// unit of work, so it needs STORAGE=pg.
func ProvideIdempotency(cfg config.Config, st Storage) (application.IdempotencyStore, readyCheck, func(), error) {
	switch cfg.IdempotencyBackend {
	case "memory":
		return memory.NewIdempotencyStore(cfg.IdempotencyTTL), nil, func() {}, nil
	case "redis":
		client, cleanup, err := ProvideRedisClient(cfg)
		if err != nil {
			return nil, nil, cleanup, err
		}
		store := redisstore.New(client, cfg.IdempotencyTTL)
		return store, store.Ping, cleanup, nil
	case "pg":
		if st.DB == nil {
			return nil, nil, func() {}, fmt.Errorf("IDEMPOTENCY_BACKEND=pg requires STORAGE=pg")
		}
		return pg.NewIdempotencyStore(st.DB, cfg.IdempotencyTTL), nil, func() {}, nil
	default:
		return nil, nil, func() {}, fmt.Errorf("%w: IDEMPOTENCY_BACKEND=%q", ErrUnknownOption, cfg.IdempotencyBackend)
	}
}

func ProvideRateProvider(cfg config.Config, log *zap.Logger) (application.RateProvider, error) {
	var rp application.RateProvider
	switch cfg.Provider {
	case "exchangeratesapi":
		rp = &provider.ExchangeRatesAPIProvider{
			BaseURL: cfg.ExchangeAPIBase,
			APIKey:  cfg.ExchangeAPIKey,
			Client: &httpx.Client{
				HTTP:       &http.Client{Timeout: cfg.RequestTimeout},
				Log:        log,
				MaxElapsed: cfg.RequestTimeout,
			},
		}
	case "fake":
		rp = provider.NewFake(cfg.FakePrice)
	default:
		return nil, fmt.Errorf("%w: PROVIDER=%q", ErrUnknownOption, cfg.Provider)
	}
	if cfg.ProviderRate > 0 {
		rp = provider.NewLimited(rp, cfg.ProviderRate, cfg.ProviderBurst)
	}
	return rp, nil
}

// ProvideCache returns nil when CACHE_MAX_ITEMS <= 0.
func ProvideCache(cfg config.Config) (application.UpdateCache, func(), error) {
	if cfg.CacheMaxItems <= 0 {
		return nil, func() {}, nil
	}
	c, err := cache.NewUpdateCache(int64(cfg.CacheMaxItems))
	if err != nil {
		return nil, func() {}, err
	}
	return c, c.Close, nil
}

func ProvideQuoteService(st Storage, idem application.IdempotencyStore, rp application.RateProvider, c application.UpdateCache, log *zap.Logger, cfg config.Config) *application.QuoteService {
	opts := []application.Option{
		application.WithUnitOfWork(st.UoW),
		application.WithCurrencies(domain.NewCurrencies(cfg.SupportedCurrencies...)),
		application.WithLogger(log),
		application.WithFetchTimeout(cfg.RequestTimeout),
	}
	if c != nil {
		opts = append(opts, application.WithCache(c))
	}
	return application.NewQuoteService(st.Updates, idem, rp, opts...)
}

func ProvideWorker(p application.UpdateProcessor, log *zap.Logger, cfg config.Config) *worker.PollWorker {
	return &worker.PollWorker{
		Processor:   p,
		PollEvery:   cfg.WorkerPoll,
		BatchLimit:  cfg.WorkerBatchSize,
		Concurrency: cfg.WorkerConcurrency,
		Log:         log.With(zap.String("component", "worker")),
	}
}

func ProvideReaper(p application.UpdateProcessor, log *zap.Logger, cfg config.Config) *worker.StaleReaper {
	return worker.NewStaleReaper(p, cfg.WorkerReaperEvery, cfg.WorkerStaleAfter, log.With(zap.String("component", "reaper")))
}
