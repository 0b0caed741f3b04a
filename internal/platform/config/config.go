package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	strutil "flock/pkg/platform/strings"
)

// Store backends accepted by FLOCK_STORE.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreS3       = "s3"
)

// Server captures process level configuration.
type Server struct {
	Addr           string
	JWTSigningKey  string
	JWTIssuer      string
	JWTAudience    string
	AdminToken     string
	AllowedOrigins []string
	RequestTimeout time.Duration

	StoreBackend string
	StoreTimeout time.Duration
	Redis        RedisConfig
	DatabaseURL  string
	S3           S3Config
	Kafka        KafkaConfig

	SettingsFile       string
	AutomationInterval time.Duration
	WebhookURL         string
	WebhookToken       string

	LogLevel  string
	LogFormat string
}

// RedisConfig is consumed by platform/redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
}

type S3Config struct {
	Bucket  string
	Prefix  string
	Region  string
	Profile string
}

// KafkaConfig enables the Kafka notifier when Brokers is non-empty.
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	EnsureTopic bool
}

// FromEnv builds a Server config from environment variables, loading a .env
// file first when one exists.
func FromEnv() (Server, error) {
	_ = godotenv.Load()

	cfg := Server{
		Addr:           env("FLOCK_ADDR", ":8080"),
		JWTSigningKey:  os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:      env("JWT_ISSUER", "flock"),
		JWTAudience:    env("JWT_AUDIENCE", "flock-api"),
		AdminToken:     os.Getenv("FLOCK_ADMIN_TOKEN"),
		AllowedOrigins: strutil.SplitList(os.Getenv("FLOCK_ALLOWED_ORIGINS"), ","),
		StoreBackend:   strings.ToLower(env("FLOCK_STORE", StoreMemory)),
		Redis: RedisConfig{
			URL:       os.Getenv("REDIS_URL"),
			KeyPrefix: env("REDIS_KEY_PREFIX", "flock:"),
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
		S3: S3Config{
			Bucket:  os.Getenv("S3_BUCKET"),
			Prefix:  env("S3_PREFIX", "flock/"),
			Region:  env("AWS_REGION", "us-east-1"),
			Profile: os.Getenv("AWS_PROFILE"),
		},
		Kafka: KafkaConfig{
			Brokers: strutil.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			Topic:   env("KAFKA_TOPIC", "flock.events"),
		},
		SettingsFile: os.Getenv("FLOCK_SETTINGS_FILE"),
		WebhookURL:   os.Getenv("FLOCK_MESSAGE_WEBHOOK_URL"),
		WebhookToken: os.Getenv("FLOCK_MESSAGE_WEBHOOK_TOKEN"),
		LogLevel:     env("LOG_LEVEL", "info"),
		LogFormat:    env("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.RequestTimeout, err = duration("FLOCK_REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.StoreTimeout, err = duration("FLOCK_STORE_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.AutomationInterval, err = duration("FLOCK_AUTOMATION_INTERVAL", time.Hour); err != nil {
		return Server{}, err
	}
	if cfg.Redis.PoolSize, err = integer("REDIS_POOL_SIZE", 10); err != nil {
		return Server{}, err
	}
	if cfg.Redis.MinIdleConns, err = integer("REDIS_MIN_IDLE_CONNS", 2); err != nil {
		return Server{}, err
	}
	if cfg.Redis.DialTimeout, err = duration("REDIS_DIAL_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.ReadTimeout, err = duration("REDIS_READ_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.WriteTimeout, err = duration("REDIS_WRITE_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	cfg.Kafka.EnsureTopic = os.Getenv("KAFKA_ENSURE_TOPIC") == "true"

	return cfg, cfg.Validate()
}

// Validate checks that the selected backend has what it needs.
func (c Server) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 store")
		}
	default:
		return fmt.Errorf("unknown FLOCK_STORE %q", c.StoreBackend)
	}
	if c.AutomationInterval < 0 {
		return fmt.Errorf("FLOCK_AUTOMATION_INTERVAL must not be negative")
	}
	return nil
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func integer(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
