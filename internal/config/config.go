package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds configuration for the watchgate service.
type Config struct {
	HTTPPort  string
	JWTSecret []byte

	// OpsPasswordHash is the Argon2id hash that guards the ops API. When
	// empty, login is disabled and mutating endpoints reject all requests.
	OpsPasswordHash string

	// StoreBackend selects the persistence layer: "postgres" or "memory".
	StoreBackend string

	Database  DatabaseConfig
	Redis     RedisConfig
	Pricing   PricingConfig
	Scheduler SchedulerConfig
	Notify    NotifyConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PricingConfig holds all charge amounts, in credit units.
type PricingConfig struct {
	// MeteredCallCost is the price of one metered operation.
	MeteredCallCost decimal.Decimal
	// RecurringFee is the flat per-period fee per active topic subscription.
	RecurringFee decimal.Decimal
	// FeeHeadroom is the extra amount that must be affordable on top of the
	// recurring fee, so that at least one metered call remains affordable
	// after a successful fee charge.
	FeeHeadroom decimal.Decimal
	// MinStartBalance is checked once when a subscription is created.
	MinStartBalance decimal.Decimal
	// WarnStandardBelow and WarnCriticalBelow are the post-charge balance
	// thresholds for low-balance warnings.
	WarnStandardBelow decimal.Decimal
	WarnCriticalBelow decimal.Decimal
	// EstimatedDailyBurn is used for the runway estimate in notifications.
	EstimatedDailyBurn decimal.Decimal
}

// SchedulerConfig holds recurring-fee scheduler settings.
type SchedulerConfig struct {
	// FeePeriod is the fixed period between recurring charges per pair.
	FeePeriod time.Duration
	// CheckInterval is how often a topic task wakes to look for due charges.
	CheckInterval time.Duration
}

// NotifyConfig holds notification delivery settings.
type NotifyConfig struct {
	// Backend selects notification delivery: "log", "memory" or "redis".
	Backend string
	// QueueName namespaces the notification queue key.
	QueueName string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnvString("HTTP_PORT", "8080"),
		JWTSecret:       []byte(getEnvString("JWT_SECRET", "")),
		OpsPasswordHash: getEnvString("OPS_PASSWORD_HASH", ""),
		StoreBackend:    getEnvString("STORE_BACKEND", "memory"),
		Database: DatabaseConfig{
			URL:             getEnvString("DATABASE_URL", "postgres://postgres@localhost:5432/watchgate?sslmode=disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
			QueryTimeout:    getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Pricing: PricingConfig{
			MeteredCallCost:    getEnvDecimal("PRICE_METERED_CALL", "0.01"),
			RecurringFee:       getEnvDecimal("PRICE_RECURRING_FEE", "2.00"),
			FeeHeadroom:        getEnvDecimal("PRICE_FEE_HEADROOM", "0.01"),
			MinStartBalance:    getEnvDecimal("PRICE_MIN_START_BALANCE", "5.00"),
			WarnStandardBelow:  getEnvDecimal("PRICE_WARN_STANDARD_BELOW", "10.00"),
			WarnCriticalBelow:  getEnvDecimal("PRICE_WARN_CRITICAL_BELOW", "5.00"),
			EstimatedDailyBurn: getEnvDecimal("PRICE_ESTIMATED_DAILY_BURN", "2.50"),
		},
		Scheduler: SchedulerConfig{
			FeePeriod:     getEnvDuration("SCHEDULER_FEE_PERIOD", 24*time.Hour),
			CheckInterval: getEnvDuration("SCHEDULER_CHECK_INTERVAL", time.Minute),
		},
		Notify: NotifyConfig{
			Backend:   getEnvString("NOTIFY_BACKEND", "log"),
			QueueName: getEnvString("NOTIFY_QUEUE_NAME", "notifications"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: must be memory or postgres", c.StoreBackend)
	}
	switch c.Notify.Backend {
	case "log", "memory", "redis":
	default:
		return fmt.Errorf("invalid NOTIFY_BACKEND %q: must be log, memory or redis", c.Notify.Backend)
	}
	p := c.Pricing
	for _, amount := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"PRICE_METERED_CALL", p.MeteredCallCost},
		{"PRICE_RECURRING_FEE", p.RecurringFee},
		{"PRICE_MIN_START_BALANCE", p.MinStartBalance},
	} {
		if amount.value.Sign() <= 0 {
			return fmt.Errorf("%s must be positive, got %s", amount.name, amount.value)
		}
	}
	if p.FeeHeadroom.Sign() < 0 {
		return fmt.Errorf("PRICE_FEE_HEADROOM must not be negative, got %s", p.FeeHeadroom)
	}
	if c.Scheduler.FeePeriod <= 0 {
		return fmt.Errorf("SCHEDULER_FEE_PERIOD must be positive, got %s", c.Scheduler.FeePeriod)
	}
	if c.Scheduler.CheckInterval <= 0 {
		return fmt.Errorf("SCHEDULER_CHECK_INTERVAL must be positive, got %s", c.Scheduler.CheckInterval)
	}
	return nil
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvDecimal(key string, defaultValue string) decimal.Decimal {
	val := os.Getenv(key)
	if val == "" {
		val = defaultValue
	}

	d, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.RequireFromString(defaultValue)
	}

	return d
}
