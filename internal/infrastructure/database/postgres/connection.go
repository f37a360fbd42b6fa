// Package postgres provides PostgreSQL connectivity for the analyte
// resolution engine: a database/sql connection used by the migrator and
// health checks, and a pgx pool used by the repositories.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	appErrors "github.com/envlytics/analyte-resolver/pkg/errors"
)

// sqlOpen is swapped out in unit tests.
var sqlOpen = sql.Open

// Connection wraps a database/sql handle with pool configuration and
// health checking.
type Connection struct {
	db     *sql.DB
	cfg    config.DatabaseConfig
	logger logging.Logger
}

// NewConnection opens and pings a PostgreSQL connection.
func NewConnection(cfg config.DatabaseConfig, logger logging.Logger) (*Connection, error) {
	db, err := sqlOpen("postgres", BuildDSN(cfg))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to open database connection")
	}

	db.SetMaxOpenConns(defaulted(cfg.MaxConns, 25))
	db.SetMaxIdleConns(defaulted(cfg.MinConns, 10))
	db.SetConnMaxLifetime(defaultedDur(cfg.ConnMaxLifetime, 30*time.Minute))
	db.SetConnMaxIdleTime(defaultedDur(cfg.ConnMaxIdleTime, 5*time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to ping database")
	}

	logger.Info("connected to postgres",
		logging.String("host", cfg.Host),
		logging.Int("port", cfg.Port),
		logging.String("database", cfg.DBName),
	)

	return &Connection{db: db, cfg: cfg, logger: logger}, nil
}

// NewConnectionWithDB wraps an existing handle; used by tests.
func NewConnectionWithDB(db *sql.DB, cfg config.DatabaseConfig, logger logging.Logger) *Connection {
	return &Connection{db: db, cfg: cfg, logger: logger}
}

// DB returns the underlying database handle.
func (c *Connection) DB() *sql.DB {
	return c.db
}

// HealthCheck pings the database and logs a warning when pool usage is
// above 80% of the configured maximum.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBConnectionError, "database health check failed")
	}

	stats := c.db.Stats()
	if stats.MaxOpenConnections > 0 {
		usage := float64(stats.InUse) / float64(stats.MaxOpenConnections)
		if usage > 0.8 {
			c.logger.Warn("database connection pool usage is high",
				logging.Int("in_use", stats.InUse),
				logging.Int("max_open", stats.MaxOpenConnections),
				logging.Float64("usage", usage),
			)
		}
	}
	return nil
}

// Close closes the connection pool.
func (c *Connection) Close() error {
	c.logger.Info("closing postgres connection")
	return c.db.Close()
}

// NewPool creates a pgx connection pool for the repository layer.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger logging.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildDSN(cfg))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to parse pool config")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to ping connection pool")
	}

	logger.Info("created pgx connection pool",
		logging.String("host", cfg.Host),
		logging.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// BuildDSN renders the connection string from configuration.
func BuildDSN(cfg config.DatabaseConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		sslMode,
	)
}

func defaulted(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func defaultedDur(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
