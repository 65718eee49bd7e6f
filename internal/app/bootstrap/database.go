package bootstrap

import (
	"fmt"

	"videohub/internal/cfg"
	"videohub/pkg/db"
)

func InitDatabase(pg cfg.PostgresConfig) (db.DB, error) {
	connConfig := db.ConnectionConfig{
		MaxOpenConns:    pg.MaxOpenConns,
		MaxIdleConns:    pg.MaxIdleConns,
		ConnMaxLifetime: pg.ConnMaxLifetime,
		ConnMaxIdleTime: pg.ConnMaxIdleTime,
		QueryTimeout:    pg.QueryTimeout,
	}

	dbClient, err := db.NewPostgresClient(pg.DSN, connConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return dbClient, nil
}
