package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/otpvault/pkg/clocksync"
	"github.com/dmitrymomot/otpvault/pkg/config"
	"github.com/dmitrymomot/otpvault/pkg/logger"
	"github.com/dmitrymomot/otpvault/pkg/ntp"
	"github.com/dmitrymomot/otpvault/pkg/store/memstore"
	"github.com/dmitrymomot/otpvault/pkg/store/mongostore"
	"github.com/dmitrymomot/otpvault/pkg/store/pgstore"
	"github.com/dmitrymomot/otpvault/pkg/store/redisstore"
	"github.com/dmitrymomot/otpvault/pkg/vault"
)

// app holds what commands share: configuration, the logger and lazily
// opened stores. Stores set before the command runs are used as is.
type app struct {
	cfg config.Config
	log *slog.Logger

	secrets vault.SecretStore
	prefs   vault.PreferenceStore
	checks  map[string]func(context.Context) error
	pool    *pgxpool.Pool
	closers []func()
}

func (a *app) init(out io.Writer, envFiles []string) error {
	if len(envFiles) > 0 {
		if err := config.LoadEnv(envFiles...); err != nil {
			return err
		}
	}
	if err := config.Load(&a.cfg); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.log = logger.New(
		logger.WithEnvironment(a.cfg.Environment, "otpvault"),
		logger.WithLevelName(a.cfg.LogLevel),
		logger.WithFormat(logger.Format(a.cfg.LogFormat)),
		logger.WithOutput(out),
	)
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) ntpClient() *ntp.Client {
	return ntp.NewClient(
		ntp.WithTimeout(a.cfg.Clock.Timeout),
		ntp.WithPort(a.cfg.Clock.Port),
	)
}

// clock returns a Source for the configured server, or for the server
// saved in the preference store when one is set.
func (a *app) clock(ctx context.Context) (*clocksync.Source, error) {
	opts := []clocksync.Option{
		clocksync.WithServer(a.cfg.Clock.Server),
		clocksync.WithCandidates(a.cfg.Clock.Candidates...),
		clocksync.WithSyncInterval(a.cfg.Clock.SyncInterval),
		clocksync.WithTickInterval(a.cfg.Clock.TickInterval),
		clocksync.WithSyncLimit(a.cfg.Clock.SyncEvery, a.cfg.Clock.SyncBurst),
		clocksync.WithLogger(a.log),
	}

	_, prefs, err := a.stores(ctx)
	if err != nil {
		return nil, err
	}
	if saved, err := prefs.Get(ctx, clocksync.DefaultServerKey); err != nil {
		a.log.WarnContext(ctx, "failed to read saved clock server", logger.Error(err))
	} else if len(saved) > 0 {
		opts = append(opts, clocksync.WithServer(string(saved)))
	}
	opts = append(opts, clocksync.WithPreferences(prefs, clocksync.DefaultServerKey))

	return clocksync.New(a.ntpClient(), opts...)
}

// now resolves the instant codes are computed for. An explicit unix time
// wins, then the system clock when syncing is off. Otherwise the clock is
// synced once; a failed sync falls back to the system clock.
func (a *app) now(ctx context.Context, at int64, noSync bool) (time.Time, time.Duration, error) {
	switch {
	case at != 0:
		return time.Unix(at, 0), 0, nil
	case noSync:
		return time.Now(), 0, nil
	}

	src, err := a.clock(ctx)
	if err != nil {
		return time.Time{}, 0, err
	}
	if _, err := src.Sync(ctx); err != nil {
		a.log.WarnContext(ctx, "using uncorrected system time", logger.Error(err))
	}
	return src.Now(), src.Offset(), nil
}

// stores opens the configured secret and preference stores once.
func (a *app) stores(ctx context.Context) (vault.SecretStore, vault.PreferenceStore, error) {
	if a.checks == nil {
		a.checks = make(map[string]func(context.Context) error)
	}

	if a.secrets == nil {
		switch a.cfg.Storage.Secrets {
		case config.DriverPostgres:
			pool, err := a.postgres(ctx)
			if err != nil {
				return nil, nil, err
			}
			a.secrets = pgstore.NewSecrets(pool)
		case config.DriverMongo:
			client, err := mongostore.Connect(ctx, a.cfg.Mongo)
			if err != nil {
				return nil, nil, err
			}
			a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
			a.checks[config.DriverMongo] = mongostore.Healthcheck(client)
			a.secrets = mongostore.NewSecrets(client, a.cfg.Mongo)
		default:
			a.secrets = memstore.NewSecrets()
		}
	}

	if a.prefs == nil {
		switch a.cfg.Storage.Preferences {
		case config.DriverPostgres:
			pool, err := a.postgres(ctx)
			if err != nil {
				return nil, nil, err
			}
			a.prefs = pgstore.NewPreferences(pool, a.log)
		case config.DriverRedis:
			client, err := redisstore.Connect(ctx, a.cfg.Redis)
			if err != nil {
				return nil, nil, err
			}
			a.closers = append(a.closers, func() { _ = client.Close() })
			a.checks[config.DriverRedis] = redisstore.Healthcheck(client)
			a.prefs = redisstore.NewPreferences(client, a.cfg.Redis, a.log)
		default:
			a.prefs = memstore.NewPreferences()
		}
	}

	return a.secrets, a.prefs, nil
}

func (a *app) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	pool, err := pgstore.Connect(ctx, a.cfg.Postgres)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	a.checks[config.DriverPostgres] = pgstore.Healthcheck(pool)
	return pool, nil
}

// openVault loads the vault and unlocks it with password when it is locked.
func (a *app) openVault(ctx context.Context, password string) (*vault.Vault, error) {
	v, err := a.loadVault(ctx)
	if err != nil {
		return nil, err
	}
	if v.Locked() {
		if password == "" {
			return nil, errors.Join(vault.ErrLocked, errors.New("pass --password or set OTPVAULT_PASSWORD"))
		}
		if err := v.UnlockWithPassword(ctx, password); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// loadVault opens the vault without unlocking it.
func (a *app) loadVault(ctx context.Context) (*vault.Vault, error) {
	secrets, prefs, err := a.stores(ctx)
	if err != nil {
		return nil, err
	}

	opts := []vault.Option{
		vault.WithLogger(a.log),
		vault.WithIterations(a.cfg.Vault.KDFIterations),
	}
	if a.cfg.Vault.RequireProtection {
		opts = append(opts, vault.WithRequireProtection())
	}

	v := vault.New(secrets, prefs, opts...)
	if err := v.Open(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
