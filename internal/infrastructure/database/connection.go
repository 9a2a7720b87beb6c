package database

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lingoledger/internal/infrastructure/config"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/lib/pq"              // registers the "postgres" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver
)

// DB wraps the sqlx handle with the SQL dialect its statements are built for.
type DB struct {
	*sqlx.DB
	Dialect string
	LogSQL  bool
}

// DialectFor maps a database/sql driver name onto the ent dialect.
func DialectFor(driver string) (string, error) {
	switch driver {
	case "sqlite3":
		return dialect.SQLite, nil
	case "postgres", "pgx":
		return dialect.Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewConnection opens the ledger database configured in cfg.
func NewConnection(cfg *config.Config, logger logrus.FieldLogger) (*DB, func(), error) {
	driver, err := cfg.DatabaseDriver()
	if err != nil {
		return nil, nil, fmt.Errorf("determine database driver: %w", err)
	}
	dsn, err := cfg.DatabaseURL()
	if err != nil {
		return nil, nil, fmt.Errorf("determine database dsn: %w", err)
	}
	db, err := Open(driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	db.LogSQL = cfg.Database.LogSQL
	logger.WithFields(logrus.Fields{"driver": driver, "dialect": db.Dialect}).Info("database connected")
	return db, func() {
		_ = db.Close()
	}, nil
}

// Open connects with an explicit driver and DSN and pings the server.
func Open(driver, dsn string) (*DB, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	raw, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if d == dialect.SQLite {
		raw.SetMaxOpenConns(1)
		raw.SetMaxIdleConns(1)
	} else {
		raw.SetMaxOpenConns(10)
		raw.SetConnMaxIdleTime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := raw.PingContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}
	if d == dialect.SQLite {
		if _, err := raw.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
			raw.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	}
	return &DB{DB: raw, Dialect: d}, nil
}
