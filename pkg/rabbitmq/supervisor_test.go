package rabbitmq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"videohub/pkg/logger"
	"videohub/pkg/rabbitmq/rabbitmqtest"

	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastReconnectConfig() *Config {
	cfg := testConfig()
	cfg.ReconnectInitialInterval = time.Millisecond
	cfg.ReconnectMaxInterval = 5 * time.Millisecond
	return cfg
}

func TestSupervisor_ReconnectsAfterRecoverableError(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	cfg := fastReconnectConfig()
	metrics := NewMetrics(nil)

	var dials atomic.Int32
	sup := NewSupervisor(cfg, logger.NewNop(), metrics).WithDialer(func() (*Client, error) {
		dials.Add(1)
		return NewClientWithChannel(cfg, broker.Channel(), logger.NewNop()), nil
	})

	first := NewClientWithChannel(cfg, broker.Channel(), logger.NewNop())
	var sessions []*Client
	fatal := errors.New("declare mismatch")

	err := sup.Run(context.Background(), first, func(ctx context.Context, c *Client) error {
		sessions = append(sessions, c)
		switch len(sessions) {
		case 1:
			return ErrDeliveriesClosed
		case 2:
			return ErrConnectionClosed
		default:
			return errors.Join(ErrTopology, fatal)
		}
	})

	assert.ErrorIs(t, err, ErrTopology)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, int32(2), dials.Load())
	require.Len(t, sessions, 3)
	assert.Same(t, first, sessions[0])
	for _, c := range sessions {
		assert.False(t, c.IsHealthy(), "supervisor must close every client it ran")
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.reconnects))
}

func TestSupervisor_SessionReturningNilReconnects(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	cfg := fastReconnectConfig()

	sup := NewSupervisor(cfg, logger.NewNop(), nil).WithDialer(func() (*Client, error) {
		return NewClientWithChannel(cfg, broker.Channel(), logger.NewNop()), nil
	})

	calls := 0
	err := sup.Run(context.Background(), NewClientWithChannel(cfg, broker.Channel(), logger.NewNop()),
		func(ctx context.Context, c *Client) error {
			calls++
			if calls == 1 {
				return nil
			}
			return ErrHandlerFailed
		})

	assert.ErrorIs(t, err, ErrHandlerFailed)
	assert.Equal(t, 2, calls)
}

func TestSupervisor_StopsOnCancel(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	cfg := fastReconnectConfig()
	sup := NewSupervisor(cfg, logger.NewNop(), nil).WithDialer(func() (*Client, error) {
		return nil, errors.New("must not dial")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sup.Run(ctx, NewClientWithChannel(cfg, broker.Channel(), logger.NewNop()),
			func(ctx context.Context, c *Client) error {
				<-ctx.Done()
				return ctx.Err()
			})
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestSupervisor_GivesUpAfterMaxAttempts(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	cfg := fastReconnectConfig()
	cfg.MaxReconnectAttempts = 3
	metrics := NewMetrics(nil)

	dialErr := errors.New("connection refused")
	var dials atomic.Int32
	sup := NewSupervisor(cfg, logger.NewNop(), metrics).WithDialer(func() (*Client, error) {
		dials.Add(1)
		return nil, dialErr
	})

	err := sup.Run(context.Background(), NewClientWithChannel(cfg, broker.Channel(), logger.NewNop()),
		func(ctx context.Context, c *Client) error { return ErrDeliveriesClosed })

	assert.ErrorIs(t, err, dialErr)
	assert.Equal(t, int32(3), dials.Load())
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.reconnects))
}

func TestSupervisor_CancelDuringBackoff(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	cfg := testConfig()
	cfg.ReconnectInitialInterval = time.Hour
	cfg.ReconnectMaxInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	sup := NewSupervisor(cfg, logger.NewNop(), nil).WithDialer(func() (*Client, error) {
		cancel()
		return nil, errors.New("connection refused")
	})

	done := make(chan error, 1)
	go func() {
		done <- sup.Run(ctx, NewClientWithChannel(cfg, broker.Channel(), logger.NewNop()),
			func(ctx context.Context, c *Client) error { return ErrDeliveriesClosed })
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor kept backing off after cancel")
	}
}

func TestSupervisor_PingTracksSession(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	cfg := fastReconnectConfig()
	sup := NewSupervisor(cfg, logger.NewNop(), nil)

	assert.ErrorIs(t, sup.Ping(context.Background()), ErrConnectionClosed)

	var during error
	err := sup.Run(context.Background(), NewClientWithChannel(cfg, broker.Channel(), logger.NewNop()),
		func(ctx context.Context, c *Client) error {
			during = sup.Ping(ctx)
			return ErrHandlerFailed
		})

	assert.ErrorIs(t, err, ErrHandlerFailed)
	assert.NoError(t, during)
	assert.ErrorIs(t, sup.Ping(context.Background()), ErrConnectionClosed)
}

func TestSupervisor_ClosedChannelDuringTopologyRedials(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	cfg := fastReconnectConfig()

	var dials atomic.Int32
	sup := NewSupervisor(cfg, logger.NewNop(), nil).WithDialer(func() (*Client, error) {
		ch := broker.Channel()
		if dials.Add(1) == 1 {
			ch.FailNext("ExchangeDeclare", amqp.ErrClosed)
		}
		return NewClientWithChannel(cfg, ch, logger.NewNop()), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := 0
	err := sup.Run(ctx, NewClientWithChannel(cfg, broker.Channel(), logger.NewNop()), func(ctx context.Context, c *Client) error {
		sessions++
		if sessions == 1 {
			return ErrConnectionClosed
		}
		if err := NewTopologyManager(c).DeclareExchange(FanoutExchange("viewed")); err != nil {
			return err
		}
		cancel()
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, int32(2), dials.Load())
	assert.Equal(t, 3, sessions)
}
