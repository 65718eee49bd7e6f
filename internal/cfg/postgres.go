package cfg

import (
	"time"
)

// PostgresConfig holds database configuration
type PostgresConfig struct {
	// DSN comes from DBHOST, e.g. postgres://user:pass@db:5432/videohub?sslmode=disable
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

func (l *Loader) loadPostgres() PostgresConfig {
	return PostgresConfig{
		DSN:             l.requireEnv("DBHOST"),
		MaxOpenConns:    l.getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    l.getEnvIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: l.getEnvDurationOrDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		ConnMaxIdleTime: l.getEnvDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		QueryTimeout:    l.getEnvDurationOrDefault("DB_QUERY_TIMEOUT", 5*time.Second),
	}
}
