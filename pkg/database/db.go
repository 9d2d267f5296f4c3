// Package database opens the optional Postgres connection used for auth
// snapshot persistence.
package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNoDSN is returned by Connect when persistence is not configured.
var ErrNoDSN = errors.New("database: DATABASE_URL not set")

type Config struct {
	DSN      string
	MaxConns int
	Timeout  time.Duration
	TimeZone string
}

// ConfigFromEnv reads DB config from environment variables. An empty DSN
// means persistence is disabled.
func ConfigFromEnv() Config {
	maxConns := 5
	if v, err := strconv.Atoi(os.Getenv("DATABASE_MAX_CONNS")); err == nil && v > 0 {
		maxConns = v
	}
	return Config{
		DSN:      os.Getenv("DATABASE_URL"),
		MaxConns: maxConns,
		Timeout:  5 * time.Second,
		TimeZone: os.Getenv("DATABASE_TIMEZONE"),
	}
}

// Connect opens a pool and verifies connectivity with a ping.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, ErrNoDSN
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if cfg.TimeZone != "" {
		if _, err := db.ExecContext(pingCtx, "SET TIME ZONE "+quoteLiteral(cfg.TimeZone)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set time zone: %w", err)
		}
	}
	return db, nil
}

// quoteLiteral escapes single quotes for SET statements, which take no
// placeholders.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
