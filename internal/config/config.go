package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string
	GRPCAddr string

	DBDriver   string
	MySQLDSN   string
	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TxTimeout       time.Duration
	CheckoutLockTTL time.Duration
	IdempotencyTTL  time.Duration

	OutboxInterval time.Duration
	OutboxBatch    int
	EventStream    string
}

// Load reads .env if present, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var errs []error
	cfg := Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr: getEnv("GRPC_ADDR", ":50051"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		MySQLDSN:   getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/storefront?parseTime=true"),
		SQLitePath: getEnv("SQLITE_PATH", "storefront.db"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0, &errs),

		TxTimeout:       getDuration("TX_TIMEOUT", 5*time.Second, &errs),
		CheckoutLockTTL: getDuration("CHECKOUT_LOCK_TTL", 10*time.Second, &errs),
		IdempotencyTTL:  getDuration("IDEMPOTENCY_TTL", 24*time.Hour, &errs),

		OutboxInterval: getDuration("OUTBOX_INTERVAL", time.Second, &errs),
		OutboxBatch:    getInt("OUTBOX_BATCH", 100, &errs),
		EventStream:    getEnv("EVENT_STREAM", "storefront:events"),
	}

	switch cfg.DBDriver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER: unsupported driver %q", cfg.DBDriver))
	}
	if cfg.CheckoutLockTTL <= cfg.TxTimeout {
		errs = append(errs, fmt.Errorf("CHECKOUT_LOCK_TTL (%s) must exceed TX_TIMEOUT (%s)", cfg.CheckoutLockTTL, cfg.TxTimeout))
	}
	if cfg.OutboxInterval <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_INTERVAL (%s) must be positive", cfg.OutboxInterval))
	}
	if cfg.OutboxBatch <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int, errs *[]error) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return n
}

func getDuration(key string, defaultVal time.Duration, errs *[]error) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return d
}
