package rabbitmq

import (
	"errors"
	"fmt"
	"time"
)

// Default values for RabbitMQ configuration
const (
	DefaultConnectionName      = "videohub"
	DefaultHeartbeat           = 10 * time.Second
	DefaultPrefetchCount       = 10
	DefaultReconnectInitialSec = 1
	DefaultReconnectMaxSec     = 60
	DefaultMaxRetries          = 3
	DefaultRetryDelay          = 500 * time.Millisecond
)

const (
	ExchangeKindFanout = "fanout"
	ExchangeKindDirect = "direct"
	ExchangeKindTopic  = "topic"
)

// FailurePolicy decides what the consumer loop does when a handler fails on a
// well-formed delivery.
type FailurePolicy string

const (
	// PolicyAbort stops the consumer loop and returns the handler error.
	PolicyAbort FailurePolicy = "abort"
	// PolicyReject rejects the delivery without requeue and keeps consuming.
	PolicyReject FailurePolicy = "reject"
	// PolicyRetry re-runs the handler with backoff, then rejects.
	PolicyRetry FailurePolicy = "retry"
)

// ParseFailurePolicy maps a configuration string onto a FailurePolicy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(s); p {
	case PolicyAbort, PolicyReject, PolicyRetry:
		return p, nil
	case "":
		return PolicyAbort, nil
	default:
		return "", fmt.Errorf("rabbitmq: unknown failure policy %q, must be abort, reject or retry", s)
	}
}

// Config holds RabbitMQ configuration
type Config struct {
	// Connection settings
	URL            string
	ConnectionName string
	Heartbeat      time.Duration

	// Consumer settings
	PrefetchCount int

	// Reconnection settings, used by the Supervisor only.
	ReconnectInitialInterval time.Duration
	ReconnectMaxInterval     time.Duration
	MaxReconnectAttempts     int // 0 means unlimited
}

// NewDefaultConfig returns a Config with default values applied
func NewDefaultConfig() *Config {
	return &Config{
		ConnectionName:           DefaultConnectionName,
		Heartbeat:                DefaultHeartbeat,
		PrefetchCount:            DefaultPrefetchCount,
		ReconnectInitialInterval: DefaultReconnectInitialSec * time.Second,
		ReconnectMaxInterval:     DefaultReconnectMaxSec * time.Second,
	}
}

// Validate checks required config fields.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}
	if c.ConnectionName == "" {
		return errors.New("rabbitmq: connection name is required")
	}
	if c.PrefetchCount < 0 {
		return errors.New("rabbitmq: prefetch count must not be negative")
	}
	if c.ReconnectInitialInterval <= 0 {
		return errors.New("rabbitmq: reconnect initial interval is required")
	}
	if c.ReconnectMaxInterval < c.ReconnectInitialInterval {
		return errors.New("rabbitmq: reconnect max interval must be >= initial interval")
	}
	return nil
}

// QueueConfig represents configuration for a specific queue.
// An empty Name asks the broker to generate one.
type QueueConfig struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	NoWait     bool
	Args       map[string]interface{}
}

// ExchangeConfig represents configuration for an exchange
type ExchangeConfig struct {
	Name       string
	Kind       string // direct, fanout, topic, headers
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Args       map[string]interface{}
}

// FanoutExchange is the canonical declaration of a broadcast exchange. Every
// process must declare it with exactly these parameters.
func FanoutExchange(name string) ExchangeConfig {
	return ExchangeConfig{
		Name:       name,
		Kind:       ExchangeKindFanout,
		Durable:    true,
		AutoDelete: false,
		Internal:   false,
	}
}

// BindingConfig represents a queue binding
type BindingConfig struct {
	QueueName  string
	Exchange   string
	RoutingKey string
	NoWait     bool
	Args       map[string]interface{}
}
