package cfg

import (
	"errors"
	"fmt"
	"os"
	"time"

	"videohub/pkg/rabbitmq"

	"github.com/goccy/go-yaml"
)

// Default location of the broker tuning file. RABBITMQ_CONFIG_FILE overrides it.
const rabbitmqYAMLPath = "internal/cfg/rabbitmq.yaml"

// RabbitMQConfig extends the base rabbitmq.Config with environment-based loading
type RabbitMQConfig struct {
	rabbitmq.Config
}

// RabbitMQYAMLConfig mirrors the yaml file. Zero values fall back to defaults.
type RabbitMQYAMLConfig struct {
	ConnectionName       string `yaml:"connection_name"`
	HeartbeatSeconds     int    `yaml:"heartbeat_seconds"`
	PrefetchCount        int    `yaml:"prefetch_count"`
	ReconnectInitialSecs int    `yaml:"reconnect_initial_seconds"`
	ReconnectMaxSecs     int    `yaml:"reconnect_max_seconds"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
}

// PublisherConfig bounds fire-and-forget view publishing.
type PublisherConfig struct {
	Timeout     time.Duration
	MaxInFlight int
	// BreakerFailures consecutive publish failures open the breaker for BreakerCooldown.
	BreakerFailures int
	BreakerCooldown time.Duration
}

// SubscriberConfig selects what a subscriber does when its sink fails.
type SubscriberConfig struct {
	FailurePolicy rabbitmq.FailurePolicy
	MaxRetries    int
	RetryDelay    time.Duration
}

func (l *Loader) loadRabbitMQ(service string) *RabbitMQConfig {
	yamlCfg, err := l.loadRabbitMQYAML()
	if err != nil {
		l.addErr("failed to load rabbitmq yaml config: " + err.Error())
		return nil
	}

	// URL always comes from env (contains credentials)
	url := l.requireAnyEnv("RABBIT", "RABBITMQ_URL")

	connectionName := yamlCfg.ConnectionName
	if connectionName == "" {
		connectionName = service
	}

	cfg := &RabbitMQConfig{
		Config: rabbitmq.Config{
			URL:                      url,
			ConnectionName:           connectionName,
			Heartbeat:                time.Duration(yamlCfg.HeartbeatSeconds) * time.Second,
			PrefetchCount:            yamlCfg.PrefetchCount,
			ReconnectInitialInterval: time.Duration(yamlCfg.ReconnectInitialSecs) * time.Second,
			ReconnectMaxInterval:     time.Duration(yamlCfg.ReconnectMaxSecs) * time.Second,
			MaxReconnectAttempts:     yamlCfg.MaxReconnectAttempts,
		},
	}
	if url != "" {
		if err := cfg.Validate(); err != nil {
			l.addErr(err.Error())
		}
	}
	return cfg
}

// loadRabbitMQYAML reads the tuning file. The default path may be absent; a
// path set through RABBITMQ_CONFIG_FILE must exist.
func (l *Loader) loadRabbitMQYAML() (*RabbitMQYAMLConfig, error) {
	path, explicit := os.LookupEnv("RABBITMQ_CONFIG_FILE")
	if !explicit || path == "" {
		path, explicit = rabbitmqYAMLPath, false
	}

	var cfg RabbitMQYAMLConfig
	yamlData, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(yamlData, &cfg); err != nil {
			return nil, errors.New("failed to parse " + path + ": " + err.Error())
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, errors.New("failed to read " + path + ": " + err.Error())
	}

	if cfg.HeartbeatSeconds == 0 {
		cfg.HeartbeatSeconds = int(rabbitmq.DefaultHeartbeat / time.Second)
	}
	if cfg.PrefetchCount == 0 {
		cfg.PrefetchCount = rabbitmq.DefaultPrefetchCount
	}
	if cfg.ReconnectInitialSecs == 0 {
		cfg.ReconnectInitialSecs = rabbitmq.DefaultReconnectInitialSec
	}
	if cfg.ReconnectMaxSecs == 0 {
		cfg.ReconnectMaxSecs = rabbitmq.DefaultReconnectMaxSec
	}

	return &cfg, nil
}

func (l *Loader) loadPublisher() PublisherConfig {
	cfg := PublisherConfig{
		Timeout:         l.getEnvDurationOrDefault("PUBLISH_TIMEOUT", 5*time.Second),
		MaxInFlight:     l.getEnvIntOrDefault("PUBLISH_MAX_IN_FLIGHT", 256),
		BreakerFailures: l.getEnvIntOrDefault("PUBLISH_BREAKER_FAILURES", 5),
		BreakerCooldown: l.getEnvDurationOrDefault("PUBLISH_BREAKER_COOLDOWN", 30*time.Second),
	}
	if cfg.BreakerFailures < 1 {
		l.addErr(fmt.Sprintf("PUBLISH_BREAKER_FAILURES must be at least 1: %d", cfg.BreakerFailures))
	}
	return cfg
}

func (l *Loader) loadSubscriber() SubscriberConfig {
	policy, err := rabbitmq.ParseFailurePolicy(os.Getenv("CONSUMER_FAILURE_POLICY"))
	if err != nil {
		l.addErr(err.Error())
	}
	return SubscriberConfig{
		FailurePolicy: policy,
		MaxRetries:    l.getEnvIntOrDefault("CONSUMER_MAX_RETRIES", rabbitmq.DefaultMaxRetries),
		RetryDelay:    l.getEnvDurationOrDefault("CONSUMER_RETRY_DELAY", rabbitmq.DefaultRetryDelay),
	}
}
