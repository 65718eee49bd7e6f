package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"videohub/internal/app/bootstrap"
	"videohub/internal/cfg"
	"videohub/internal/storage"
	"videohub/pkg/cache"
	"videohub/pkg/db"
	"videohub/pkg/logger"
	"videohub/pkg/rabbitmq"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Infrastructure holds the stateful resources of one process. Fields a role
// does not configure stay nil.
type Infrastructure struct {
	DB    db.DB
	Cache cache.Cache
	Blobs storage.Blobs

	// Broker is the first connection. The Supervisor takes it over once
	// started and closes it, along with every connection it opens later.
	Broker        *rabbitmq.Client
	Supervisor    *rabbitmq.Supervisor
	BrokerMetrics *rabbitmq.Metrics

	Registry       *prometheus.Registry
	MetricsHandler http.Handler
	Logger         logger.Logger
	shutdownOTel   func(context.Context) error
}

// Close gracefully shuts down all infrastructure resources.
// Resources are closed in reverse order of initialization.
func (i *Infrastructure) Close(ctx context.Context) error {
	var errs []error

	if i.Broker != nil {
		i.Logger.Info(ctx, "Closing broker connection")
		if err := i.Broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("broker shutdown: %w", err))
		}
	}

	if i.Cache != nil {
		i.Logger.Info(ctx, "Closing cache connections")
		if err := i.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache shutdown: %w", err))
		}
	}

	if i.DB != nil {
		i.Logger.Info(ctx, "Closing database connections")
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database shutdown: %w", err))
		}
	}

	if i.shutdownOTel != nil {
		i.Logger.Info(ctx, "Shutting down observability")
		if err := i.shutdownOTel(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("infrastructure shutdown errors: %w", errors.Join(errs...))
	}

	return nil
}

// Provider is the composition root of one process.
type Provider struct {
	Infra  *Infrastructure
	Config *cfg.Config
}

// NewProvider connects every resource the config names, in dependency order.
// Any failure closes what was already opened.
func NewProvider(ctx context.Context, config *cfg.Config) (*Provider, error) {
	appLogger := logger.NewZeroLog(config.AppEnv).With(
		logger.Field{Key: "service", Value: config.Observability.ServiceName},
	)
	appLogger.Info(ctx, "Initializing application provider...")

	shutdownOTel, err := bootstrap.InitOtel(ctx, &config.Observability)
	if err != nil {
		return nil, fmt.Errorf("observability setup: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	infra := &Infrastructure{
		Registry:       registry,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Logger:         appLogger,
		shutdownOTel:   shutdownOTel,
	}

	if err := initInfrastructure(ctx, config, infra); err != nil {
		if closeErr := infra.Close(ctx); closeErr != nil {
			appLogger.Warn(ctx, "cleanup after failed init", logger.Err(closeErr))
		}
		return nil, fmt.Errorf("infrastructure initialization: %w", err)
	}

	appLogger.Info(ctx, "Application provider initialized successfully")

	return &Provider{
		Infra:  infra,
		Config: config,
	}, nil
}

func initInfrastructure(ctx context.Context, config *cfg.Config, infra *Infrastructure) error {
	if config.Postgres.DSN != "" {
		dbClient, err := bootstrap.InitDatabase(config.Postgres)
		if err != nil {
			return fmt.Errorf("database initialization: %w", err)
		}
		infra.DB = dbClient
	}

	if config.Redis.Addr != "" {
		c, err := bootstrap.InitCache(ctx, config.Redis)
		if err != nil {
			return fmt.Errorf("cache initialization: %w", err)
		}
		infra.Cache = c
	}

	if config.Storage.Bucket != "" {
		blobs, err := bootstrap.InitBlobs(ctx, config.Storage)
		if err != nil {
			return fmt.Errorf("storage initialization: %w", err)
		}
		infra.Blobs = blobs
	}

	if config.RabbitMQ != nil {
		infra.BrokerMetrics = rabbitmq.NewMetrics(infra.Registry)
		client, sup, err := bootstrap.InitBroker(config.RabbitMQ, infra.BrokerMetrics, infra.Logger)
		if err != nil {
			return fmt.Errorf("broker initialization: %w", err)
		}
		infra.Broker = client
		infra.Supervisor = sup
	}

	return nil
}
