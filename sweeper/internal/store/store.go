// Package store is the persistent key-value bag behind the session. It has
// no logic of its own: every key is an independent string value.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/feedsweep/dbopen"
)

// Store is a string key-value bag.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
	Close() error
}

// Driver names a Store implementation.
type Driver string

const (
	DriverSQLite Driver = "sqlite"
	DriverRedis  Driver = "redis"
	DriverMemory Driver = "memory"
)

// ErrUnknownDriver is returned by Open for unsupported drivers.
var ErrUnknownDriver = errors.New("store: unknown driver")

// Config selects and configures a driver.
type Config struct {
	Driver      Driver
	Path        string // sqlite
	RedisAddr   string
	RedisDB     int
	RedisPrefix string
	TraceSQL    bool // sqlite: time and log every statement
	Logger      *slog.Logger
}

// Open creates the configured Store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	switch cfg.Driver {
	case DriverSQLite, "":
		path := cfg.Path
		if path == "" {
			path = "feedsweep.db"
		}
		opts := []dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(Schema)}
		if cfg.TraceSQL {
			opts = append(opts, dbopen.WithTracing())
		}
		db, err := dbopen.Open(path, opts...)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		return NewSQLite(db), nil

	case DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("store: redis ping: %w", err)
		}
		return NewRedis(client, cfg.RedisPrefix), nil

	case DriverMemory:
		return NewMemory(), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
