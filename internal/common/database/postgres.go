// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"infra-chatops/internal/common/config"
	apperrors "infra-chatops/internal/common/errors"

	_ "github.com/lib/pq"
)

// PostgresClient holds the pool behind the execution audit trail.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens the pool and checks the server answers within ctx.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("postgres", fmt.Errorf("open %s@%s: %w", cfg.Database, cfg.Host, err))
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxIdleTime(5 * time.Minute)

	c := &PostgresClient{DB: db}
	if err := c.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return apperrors.NewStoreUnavailableError("postgres", err)
	}
	return nil
}

func (c *PostgresClient) Close() error { return c.DB.Close() }
