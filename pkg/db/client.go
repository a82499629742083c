package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = config.DriverSQLite
)

// Client owns the pooled gorm connection shared by every repository in a binary.
type Client struct {
	conn *gorm.DB
}

// New opens the configured database. Repositories log their own failures,
// so gorm's logger stays silent.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}

	conn, err := gorm.Open(dialectorFor(cfg), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}

	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	if n := cfg.MaxOpenConns; n > 0 {
		pool.SetMaxOpenConns(n)
	}
	if n := cfg.MaxIdleConns; n > 0 {
		pool.SetMaxIdleConns(n)
	}
	if d := cfg.ConnMaxLifetime; d > 0 {
		pool.SetConnMaxLifetime(d)
	}
	if d := cfg.ConnMaxIdleTime; d > 0 {
		pool.SetConnMaxIdleTime(d)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "db_driver", conn.Dialector.Name()), "database connection established")
	}
	return &Client{conn: conn}, nil
}

// Wrap adapts an already-open connection, mostly for sqlite-backed tests.
func Wrap(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

// dialectorFor uses pgx in simple-protocol mode so pooled bouncers do not trip on prepared statements.
func dialectorFor(cfg config.DBConfig) gorm.Dialector {
	if cfg.Driver == DriverSQLite {
		return sqlite.Open(cfg.DSN)
	}
	return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in one transaction. An error or panic from fn rolls it back;
// panics are re-raised after the rollback.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
