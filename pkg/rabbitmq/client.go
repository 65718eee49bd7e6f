package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	"videohub/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Client is one broker connection with one guarded channel.
type Client struct {
	config *Config
	logger logger.Logger

	conn  *amqp.Connection
	guard *ChannelGuard

	closeOnce sync.Once
	closed    chan *amqp.Error
}

// Connect opens a connection to the broker and one channel on it. It performs
// no retry: callers decide whether a failure is fatal or worth another attempt.
func Connect(config *Config, log logger.Logger) (*Client, error) {
	if config == nil {
		return nil, ErrURLRequired
	}
	if config.URL == "" {
		return nil, ErrURLRequired
	}

	heartbeat := config.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	conn, err := amqp.DialConfig(config.URL, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": config.ConnectionName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", ErrConnectionFailed, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: open channel: %v", ErrConnectionFailed, err)
	}

	c := &Client{
		config: config,
		logger: log,
		conn:   conn,
		closed: conn.NotifyClose(make(chan *amqp.Error, 1)),
	}
	c.guard = NewChannelGuard(ch, c.openChannel)

	log.Info(context.Background(), "rabbitmq connected",
		logger.Field{Key: "connection_name", Value: config.ConnectionName},
	)
	return c, nil
}

// NewClientWithChannel builds a Client around an already open channel. It has
// no connection of its own; NotifyClose never fires and the channel is not
// reopened once closed.
func NewClientWithChannel(config *Config, ch Channel, log logger.Logger) *Client {
	if config == nil {
		config = NewDefaultConfig()
	}
	return &Client{
		config: config,
		logger: log,
		guard:  NewChannelGuard(ch, nil),
		closed: make(chan *amqp.Error),
	}
}

func (c *Client) openChannel() (Channel, error) {
	if c.conn == nil || c.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	c.logger.Debug(context.Background(), "rabbitmq channel reopened")
	return ch, nil
}

// Guard returns the shared channel guard.
func (c *Client) Guard() *ChannelGuard {
	return c.guard
}

// Config returns the configuration the client was built with.
func (c *Client) Config() *Config {
	return c.config
}

// Logger returns the client's logger.
func (c *Client) Logger() logger.Logger {
	return c.logger
}

// NotifyClose delivers at most one value when the connection goes away.
func (c *Client) NotifyClose() <-chan *amqp.Error {
	return c.closed
}

// IsHealthy reports whether the connection is open. Clients without a
// connection report the state of their channel.
func (c *Client) IsHealthy() bool {
	if c.conn != nil {
		return !c.conn.IsClosed()
	}
	return c.guard.isOpen()
}

// Close gracefully closes the channel and the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if cerr := c.guard.Close(); cerr != nil {
			err = cerr
		}
		if c.conn != nil && !c.conn.IsClosed() {
			if cerr := c.conn.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		c.logger.Info(context.Background(), "rabbitmq client closed")
	})
	return err
}
