package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrymomot/otpvault/pkg/store/mongostore"
	"github.com/dmitrymomot/otpvault/pkg/store/pgstore"
	"github.com/dmitrymomot/otpvault/pkg/store/redisstore"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverRedis    = "redis"
)

// Config is the otpvault process configuration.
type Config struct {
	Environment string `env:"OTPVAULT_ENV" envDefault:"development"`
	LogLevel    string `env:"OTPVAULT_LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"OTPVAULT_LOG_FORMAT" envDefault:"text"`

	Clock   Clock   `envPrefix:"OTPVAULT_CLOCK_"`
	Vault   Vault   `envPrefix:"OTPVAULT_VAULT_"`
	Storage Storage `envPrefix:"OTPVAULT_STORAGE_"`

	Postgres pgstore.Config
	Mongo    mongostore.Config
	Redis    redisstore.Config
}

// Clock configures NTP synchronization.
type Clock struct {
	Server       string        `env:"SERVER" envDefault:"pool.ntp.org"`
	Candidates   []string      `env:"CANDIDATES" envSeparator:"," envDefault:"pool.ntp.org,time.google.com,time.cloudflare.com,time.apple.com"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"5s"`
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"15m"`
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	Port         int           `env:"PORT" envDefault:"123"`
	// SyncEvery and SyncBurst bound how often the network is queried.
	SyncEvery    time.Duration `env:"SYNC_EVERY" envDefault:"15s"`
	SyncBurst    int           `env:"SYNC_BURST" envDefault:"4"`
}

// Vault configures the key hierarchy.
type Vault struct {
	KDFIterations     int  `env:"KDF_ITERATIONS" envDefault:"100000"`
	RequireProtection bool `env:"REQUIRE_PROTECTION" envDefault:"false"`
}

// Storage selects where entries and preferences live.
type Storage struct {
	Secrets     string `env:"SECRETS" envDefault:"memory"`
	Preferences string `env:"PREFERENCES" envDefault:"memory"`
}

// Validate checks values that env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.Clock.Server == "" {
		errs = append(errs, errors.New("clock server is empty"))
	}
	if c.Clock.Timeout <= 0 {
		errs = append(errs, errors.New("clock timeout must be positive"))
	}
	if c.Clock.SyncInterval <= 0 || c.Clock.TickInterval <= 0 {
		errs = append(errs, errors.New("clock intervals must be positive"))
	}
	if c.Clock.Port <= 0 || c.Clock.Port > 65535 {
		errs = append(errs, fmt.Errorf("clock port %d out of range", c.Clock.Port))
	}
	if c.Vault.KDFIterations <= 0 {
		errs = append(errs, errors.New("kdf iterations must be positive"))
	}

	if !slices.Contains([]string{DriverMemory, DriverPostgres, DriverMongo}, c.Storage.Secrets) {
		errs = append(errs, fmt.Errorf("unknown secrets driver %q", c.Storage.Secrets))
	}
	if !slices.Contains([]string{DriverMemory, DriverPostgres, DriverRedis}, c.Storage.Preferences) {
		errs = append(errs, fmt.Errorf("unknown preferences driver %q", c.Storage.Preferences))
	}
	if c.uses(DriverPostgres) && c.Postgres.ConnectionString == "" {
		errs = append(errs, errors.New("postgres driver selected but PG_CONN_URL is empty"))
	}
	if c.Storage.Secrets == DriverMongo && c.Mongo.ConnectionURL == "" {
		errs = append(errs, errors.New("mongo driver selected but MONGODB_URL is empty"))
	}
	if c.Storage.Preferences == DriverRedis && c.Redis.ConnectionURL == "" {
		errs = append(errs, errors.New("redis driver selected but REDIS_URL is empty"))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

func (c Config) uses(driver string) bool {
	return c.Storage.Secrets == driver || c.Storage.Preferences == driver
}
