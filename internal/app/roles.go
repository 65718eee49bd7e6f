package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"videohub/internal/cfg"
	"videohub/internal/history"
	"videohub/internal/recommend"
	"videohub/internal/storage"
	"videohub/internal/video"
	"videohub/internal/viewed"
	"videohub/pkg/logger"
	"videohub/pkg/rabbitmq"
)

// RunVideoAPI serves /video and publishes a view event per successful stream.
func RunVideoAPI(ctx context.Context, config *cfg.Config) error {
	return withProvider(ctx, config, func(p *Provider) error {
		catalog := video.NewCatalog(p.Infra.DB)
		if err := catalog.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("video schema: %w", err)
		}

		publisher := viewed.NewPublisher(viewed.PublisherConfig{
			Timeout:         config.Publisher.Timeout,
			MaxInFlight:     config.Publisher.MaxInFlight,
			BreakerFailures: uint32(config.Publisher.BreakerFailures),
			BreakerCooldown: config.Publisher.BreakerCooldown,
		}, p.Infra.BrokerMetrics, p.Infra.Logger)

		handler := video.NewHandler(catalog, publisher, config.VideoStorage.URL(), &http.Client{}, p.Infra.Logger)
		srv := NewServer(p, handler)

		return serve(ctx, p, srv, publisher.Session, publisher.Wait)
	})
}

// RunHistory records every view in Postgres and serves /history.
func RunHistory(ctx context.Context, config *cfg.Config) error {
	return withProvider(ctx, config, func(p *Provider) error {
		store := history.NewStore(p.Infra.DB)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("history schema: %w", err)
		}

		sub := viewed.NewSubscriber(subscriberConfig("history", viewed.HistoryConsumerTag, config.Subscriber),
			store, p.Infra.BrokerMetrics, p.Infra.Logger)
		srv := NewServer(p, history.NewHandler(store, p.Infra.Logger))

		return serve(ctx, p, srv, sub.Session, nil)
	})
}

// RunRecommendations tallies views in Redis and serves /recommendations.
func RunRecommendations(ctx context.Context, config *cfg.Config) error {
	return withProvider(ctx, config, func(p *Provider) error {
		tally := recommend.NewTally(p.Infra.Cache)

		sub := viewed.NewSubscriber(subscriberConfig("recommendations", viewed.RecommendationsConsumerTag, config.Subscriber),
			tally, p.Infra.BrokerMetrics, p.Infra.Logger)
		srv := NewServer(p, recommend.NewHandler(tally, p.Infra.Logger))

		return serve(ctx, p, srv, sub.Session, nil)
	})
}

// RunStorage serves the blob store over HTTP. It has no broker.
func RunStorage(ctx context.Context, config *cfg.Config) error {
	return withProvider(ctx, config, func(p *Provider) error {
		srv := NewServer(p, storage.NewHandler(p.Infra.Blobs, p.Infra.Logger))
		return serve(ctx, p, srv, nil, nil)
	})
}

func subscriberConfig(name, tag string, sc cfg.SubscriberConfig) viewed.SubscriberConfig {
	return viewed.SubscriberConfig{
		Name:          name,
		ConsumerTag:   tag,
		FailurePolicy: sc.FailurePolicy,
		MaxRetries:    sc.MaxRetries,
		RetryDelay:    sc.RetryDelay,
	}
}

func withProvider(ctx context.Context, config *cfg.Config, run func(p *Provider) error) error {
	p, err := NewProvider(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		if err := p.Infra.Close(closeCtx); err != nil {
			p.Infra.Logger.Error(closeCtx, "infrastructure shutdown", logger.Err(err))
		}
	}()
	return run(p)
}

// serve runs the HTTP server and, when session is set, the broker supervisor
// until ctx ends or either of them fails. Shutdown stops the server first,
// then drains, then ends the broker session and waits for it.
func serve(ctx context.Context, p *Provider, srv *Server, session rabbitmq.Session, drain func(context.Context) error) error {
	log := p.Infra.Logger
	sessionCtx, stopSession := context.WithCancel(ctx)
	defer stopSession()

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Run(); err != nil {
			errCh <- err
		}
	}()

	supervised := make(chan struct{})
	if session != nil {
		go func() {
			defer close(supervised)
			if err := p.Infra.Supervisor.Run(sessionCtx, p.Infra.Broker, session); err != nil {
				errCh <- fmt.Errorf("rabbitmq: %w", err)
			}
		}()
	} else {
		close(supervised)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(ctx, "shutdown requested")
	case runErr = <-errCh:
		log.Error(ctx, "stopping after failure", logger.Err(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), p.Config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if drain != nil {
		if err := drain(shutdownCtx); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("drain: %w", err))
		}
	}

	stopSession()
	select {
	case <-supervised:
	case <-shutdownCtx.Done():
		log.Warn(shutdownCtx, "broker session did not stop in time")
	}

	return runErr
}
