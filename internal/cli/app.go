package cli

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/golease/internal/config"
	"github.com/mihaimyh/golease/internal/logger"
	"github.com/mihaimyh/golease/pkg/golease"
	prommetrics "github.com/mihaimyh/golease/pkg/golease/metrics/prometheus"
	"github.com/mihaimyh/golease/ratesource/bnr"
	firestoreStorage "github.com/mihaimyh/golease/storage/firestore"
	"github.com/mihaimyh/golease/storage/memory"
	"github.com/mihaimyh/golease/storage/postgres"
	redisStorage "github.com/mihaimyh/golease/storage/redis"
	"github.com/mihaimyh/golease/storage/sqlstore"
	"github.com/mihaimyh/golease/storage/tiered"
)

// backend is what every persistent store offers the CLI.
type backend interface {
	golease.ContractStore
	golease.InvoiceStore
	golease.RateStore
}

// app holds the wired components for one command invocation.
type app struct {
	cfg      *config.Config
	manager  *golease.Manager
	registry *prometheus.Registry
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	log := logger.WithComponent("app")

	store, err := a.openBackend(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	log.Debug().Str("storage", cfg.Storage).Msg("storage backend ready")

	if cfg.ContractsFile != "" && cfg.Storage != config.StorageMemory {
		if err := seedContracts(ctx, store, cfg.ContractsFile); err != nil {
			a.Close()
			return nil, err
		}
	}

	metrics := prommetrics.NewMetrics(a.registry, cfg.MetricsNamespace)

	var (
		rates       golease.RateStore = store
		rateCache   golease.RateCache
		yearlyCache golease.YearlyTotalsCache
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		a.closers = append(a.closers, func() { _ = client.Close() })

		hot, err := redisStorage.New(client, redisStorage.DefaultConfig())
		if err != nil {
			a.Close()
			return nil, err
		}
		ts, err := tiered.New(tiered.Config{
			Hot:            hot,
			Cold:           store,
			AsyncHotWrites: true,
			AsyncErrorHandler: func(err error) {
				log.Warn().Err(err).Msg("redis rate sync failed")
			},
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = ts.Close() })

		rates = ts
		rateCache = redisStorage.NewRateCache(client, "")
		yearlyCache = hot
		log.Debug().Str("addr", cfg.RedisAddr).Int("db", cfg.RedisDB).Msg("redis rate tier enabled")
	}

	location, err := golease.LoadBusinessLocation(cfg.BusinessTimezone)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load business timezone: %w", err)
	}

	source, err := bnr.NewSource(bnr.Config{BaseURL: cfg.BNRBaseURL, Location: location})
	if err != nil {
		a.Close()
		return nil, err
	}

	resolver, err := golease.NewRateResolver(golease.RateResolverConfig{
		Store:        rates,
		Cache:        rateCache,
		Source:       source,
		FetchTimeout: cfg.RateFetchTimeout,
		Location:     location,
		Logger:       logger.Component("rates"),
		Metrics:      metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.manager, err = golease.NewManager(store, store, golease.Config{
		Rates:       resolver,
		RatePolicy:  cfg.RatePolicy,
		YearlyCache: yearlyCache,
		Logger:      logger.Component("manager"),
		Metrics:     metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openBackend(ctx context.Context) (backend, error) {
	cfg := a.cfg
	switch cfg.Storage {
	case config.StoragePostgres:
		pgConfig := postgres.DefaultConfig()
		pgConfig.ConnectionString = cfg.DatabaseURL
		store, err := postgres.New(ctx, pgConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil

	case config.StorageSQL:
		sqlConfig := sqlstore.DefaultConfig()
		sqlConfig.Driver = cfg.SQLDriver
		sqlConfig.DSN = cfg.SQLDSN
		store, err := sqlstore.Open(sqlConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open sql storage: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil

	case config.StorageFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return firestoreStorage.New(client, firestoreStorage.Config{})

	default:
		store := memory.New()
		if cfg.ContractsFile != "" {
			if err := store.LoadContractsFile(cfg.ContractsFile); err != nil {
				return nil, err
			}
		}
		return store, nil
	}
}

// seedContracts validates the contracts file and saves every contract into
// a persistent backend.
func seedContracts(ctx context.Context, store backend, path string) error {
	writer, ok := store.(golease.ContractWriter)
	if !ok {
		return fmt.Errorf("storage %T cannot save contracts", store)
	}
	staging := memory.New()
	if err := staging.LoadContractsFile(path); err != nil {
		return err
	}
	contracts, err := staging.ListActiveContracts(ctx)
	if err != nil {
		return err
	}
	for i := range contracts {
		if err := writer.SaveContract(ctx, &contracts[i]); err != nil {
			return fmt.Errorf("failed to save contract %s: %w", contracts[i].ID, err)
		}
	}
	return nil
}
