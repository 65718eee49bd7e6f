package cfg

import (
	"time"
)

// Config is built once per process by one of the Load* functions and passed
// down explicitly. Sections a role does not need stay zero.
type Config struct {
	AppEnv          string
	HTTPServer      HTTPServerConfig
	Observability   OtelConfig
	RabbitMQ        *RabbitMQConfig
	Postgres        PostgresConfig
	Redis           RedisConfig
	Storage         StorageConfig
	VideoStorage    VideoStorageConfig
	Publisher       PublisherConfig
	Subscriber      SubscriberConfig
	ShutdownTimeout time.Duration
}

// HTTPServerConfig holds the listener settings.
type HTTPServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const defaultShutdownTimeout = 15 * time.Second

func (l *Loader) loadBase(defaultService string) *Config {
	return &Config{
		AppEnv:          l.getEnvWithDefault("APP_ENV", "development"),
		HTTPServer:      l.loadHTTPServer(),
		Observability:   l.loadOtel(defaultService),
		ShutdownTimeout: l.getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
	}
}

func (l *Loader) loadHTTPServer() HTTPServerConfig {
	return HTTPServerConfig{
		Port:         l.requireEnv("PORT"),
		ReadTimeout:  l.getEnvDurationOrDefault("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout: l.getEnvDurationOrDefault("HTTP_WRITE_TIMEOUT", 0),
	}
}

func finish(l *Loader, cfg *Config) (*Config, error) {
	if l.HasErrors() {
		return nil, l.Error()
	}
	return cfg, nil
}

// LoadVideoAPI loads the video API: broker publisher, catalog and storage service.
func LoadVideoAPI() (*Config, error) {
	l := NewLoader()
	cfg := l.loadBase("videoapi")
	cfg.RabbitMQ = l.loadRabbitMQ("videoapi")
	cfg.Postgres = l.loadPostgres()
	cfg.VideoStorage = l.loadVideoStorage()
	cfg.Publisher = l.loadPublisher()
	return finish(l, cfg)
}

// LoadHistory loads the history subscriber.
func LoadHistory() (*Config, error) {
	l := NewLoader()
	cfg := l.loadBase("history")
	cfg.RabbitMQ = l.loadRabbitMQ("history")
	cfg.Postgres = l.loadPostgres()
	cfg.Subscriber = l.loadSubscriber()
	return finish(l, cfg)
}

// LoadRecommendations loads the recommendations subscriber.
func LoadRecommendations() (*Config, error) {
	l := NewLoader()
	cfg := l.loadBase("recommendations")
	cfg.RabbitMQ = l.loadRabbitMQ("recommendations")
	cfg.Redis = l.loadRedis()
	cfg.Subscriber = l.loadSubscriber()
	return finish(l, cfg)
}

// LoadStorage loads the blob storage service.
func LoadStorage() (*Config, error) {
	l := NewLoader()
	cfg := l.loadBase("storage")
	cfg.Storage = l.loadStorage()
	return finish(l, cfg)
}
