package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"flock/internal/platform/config"
	platformredis "flock/internal/platform/redis"
	"flock/internal/storage"
	"flock/internal/storage/memory"
	"flock/internal/storage/postgres"
	redisstore "flock/internal/storage/redis"
	s3store "flock/internal/storage/s3"
)

// openStore selects the KV backend. The returned close func releases any
// connection it opened.
func openStore(ctx context.Context, cfg config.Server, log *slog.Logger) (storage.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StoreBackend {
	case config.StoreRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using redis store", "key_prefix", cfg.Redis.KeyPrefix)
		return redisstore.New(client.Client, redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix)), client.Close, nil

	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		st := postgres.New(db)
		if err := st.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("using postgres store")
		return st, db.Close, nil

	case config.StoreS3:
		st, err := s3store.NewFromConfig(ctx, cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.Region, cfg.S3.Profile)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using s3 store", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
		return st, noop, nil

	default:
		log.Warn("using in-memory store; data is lost on restart")
		return memory.New(), noop, nil
	}
}

func newRunner(st storage.Store, cfg config.Server) *storage.Runner {
	return storage.NewRunner(st, storage.WithTimeout(cfg.StoreTimeout))
}
