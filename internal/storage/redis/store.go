// Package redis stores blobs in Redis so several server instances can share
// one congregation dataset.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"flock/internal/storage"
	"flock/pkg/platform/sentinel"
)

var (
	opDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flock_kv_redis_op_duration_ms",
		Help:    "Latency of Redis blob store operations in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
	}, []string{"op"})
)

// defaultKeyPrefix namespaces every blob key.
const defaultKeyPrefix = "flock:"

var _ storage.BatchStore = (*Store)(nil)

type Store struct {
	client *redis.Client
	prefix string
}

type Option func(*Store)

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New constructs a Redis-backed blob store. The client lifecycle is managed by
// the caller.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	defer observe("get", time.Now())
	v, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	defer observe("set", time.Now())
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// SetBatch writes all values inside one MULTI/EXEC block.
func (s *Store) SetBatch(ctx context.Context, values map[string][]byte) error {
	defer observe("set_batch", time.Now())
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, s.prefix+k, v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set batch: %w", err)
	}
	return nil
}

func observe(op string, start time.Time) {
	opDurationMs.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}
