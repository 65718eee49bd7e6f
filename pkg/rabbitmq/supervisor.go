package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"videohub/pkg/logger"

	"github.com/avast/retry-go/v4"
)

// Session is one connected lifetime of a subscriber or publisher: it runs until
// the connection is lost (recoverable error), a fatal error occurs, or ctx ends.
type Session func(ctx context.Context, client *Client) error

// Dialer opens a new client.
type Dialer func() (*Client, error)

// Supervisor re-runs a Session on a fresh connection each time the previous one
// is lost, backing off exponentially between dial attempts.
type Supervisor struct {
	config  *Config
	logger  logger.Logger
	metrics *Metrics
	dial    Dialer

	current atomic.Pointer[Client]
}

// NewSupervisor creates a supervisor that dials with Connect.
func NewSupervisor(config *Config, log logger.Logger, metrics *Metrics) *Supervisor {
	return &Supervisor{
		config:  config,
		logger:  log,
		metrics: metrics,
		dial:    func() (*Client, error) { return Connect(config, log) },
	}
}

// WithDialer replaces the dial function.
func (s *Supervisor) WithDialer(d Dialer) *Supervisor {
	s.dial = d
	return s
}

// Run runs session on first, which the caller connected itself so that an
// unreachable broker at startup stays a startup failure. Later sessions get a
// new client. Run returns nil when ctx is cancelled, the fatal error that
// stopped a session, or the last dial error once MaxReconnectAttempts is spent.
// Run closes every client it is given.
func (s *Supervisor) Run(ctx context.Context, first *Client, session Session) error {
	client := first
	for {
		err := s.runOnce(ctx, client, session)
		if ctx.Err() != nil {
			return nil
		}
		if IsFatal(err) {
			return err
		}

		s.logger.Warn(ctx, "rabbitmq session ended, reconnecting", logger.Err(err))

		client, err = s.reconnect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reconnect: %w", err)
		}
	}
}

// Ping reports whether a session currently holds an open connection.
func (s *Supervisor) Ping(_ context.Context) error {
	client := s.current.Load()
	if client == nil || !client.IsHealthy() {
		return ErrConnectionClosed
	}
	return nil
}

func (s *Supervisor) runOnce(ctx context.Context, client *Client, session Session) error {
	s.current.Store(client)
	defer func() {
		s.current.Store(nil)
		if err := client.Close(); err != nil {
			s.logger.Debug(ctx, "close after session", logger.Err(err))
		}
	}()

	err := session(ctx, client)
	if err == nil && ctx.Err() == nil {
		// A session returning nil without cancellation ended with its connection.
		err = ErrConnectionClosed
	}
	return err
}

func (s *Supervisor) reconnect(ctx context.Context) (*Client, error) {
	var client *Client
	err := retry.Do(
		func() error {
			s.metrics.observeReconnect()
			c, err := s.dial()
			if err != nil {
				return err
			}
			client = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.config.MaxReconnectAttempts)),
		retry.Delay(s.config.ReconnectInitialInterval),
		retry.MaxDelay(s.config.ReconnectMaxInterval),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn(ctx, "reconnection attempt failed",
				logger.Field{Key: "attempt", Value: n + 1},
				logger.Err(err),
			)
		}),
	)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("dialer returned no client")
	}

	s.logger.Info(ctx, "reconnection successful")
	return client, nil
}
