package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/tenantbook/libs/config"
	"github.com/md-rashed-zaman/tenantbook/libs/db"
	"github.com/md-rashed-zaman/tenantbook/libs/runtime"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/migrations"
)

// openStore builds the TenantStore for STORE_BACKEND and returns the ready
// checks and cleanup that go with it.
func openStore(ctx context.Context, logger *slog.Logger, rdb *redis.Client, keyPrefix string) (*storage.TenantStore, []runtime.ReadyCheck, func(), error) {
	var (
		backend storage.Backend
		checks  []runtime.ReadyCheck
		closeFn = func() {}
	)
	kind := strings.ToLower(strings.TrimSpace(config.String("STORE_BACKEND", "file")))
	switch kind {
	case "file":
		path := config.String("STORE_FILE_PATH", "data/tenants.json.zst")
		b, err := storage.NewFileBackend(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open file store: %w", err)
		}
		backend = b
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return nil, nil, nil, err
		}
		migrate, err := config.Bool("DB_AUTO_MIGRATE", true)
		if err != nil {
			return nil, nil, nil, err
		}
		if migrate {
			if err := db.Migrate(dbURL, migrations.FS); err != nil {
				return nil, nil, nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("database migrations applied")
		}
		maxConns, err := config.Int("DB_MAX_CONNS", 10)
		if err != nil {
			return nil, nil, nil, err
		}
		pool, err := db.Open(ctx, dbURL, db.PoolOptions{MaxConns: int32(maxConns)})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("db connection failed: %w", err)
		}
		backend = storage.NewPostgresBackend(pool.Pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
		closeFn = pool.Close
	case "redis":
		if rdb == nil {
			return nil, nil, nil, fmt.Errorf("STORE_BACKEND=redis requires REDIS_ADDR")
		}
		backend = storage.NewRedisBackend(rdb, keyPrefix)
	default:
		return nil, nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", kind)
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	logger.Info("tenant store ready", "backend", kind)

	store := storage.NewTenantStore(backend)
	checks = append(checks, runtime.ReadyCheck{Name: "store", Check: store.Ping})
	return store, checks, closeFn, nil
}
