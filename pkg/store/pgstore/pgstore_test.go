package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dmitrymomot/otpvault/pkg/logger"
	"github.com/dmitrymomot/otpvault/pkg/otp"
	"github.com/dmitrymomot/otpvault/pkg/store/pgstore"
	"github.com/dmitrymomot/otpvault/pkg/vault"
)

// databaseURL returns OTPVAULT_TEST_PG_URL, or starts a container when
// Docker is available.
func databaseURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("OTPVAULT_TEST_PG_URL"); url != "" {
		return url
	}
	if testing.Short() {
		t.Skip("integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:17-alpine",
		tcpostgres.WithDatabase("otpvault"),
		tcpostgres.WithUsername("otpvault"),
		tcpostgres.WithPassword("otpvault"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return url
}

// testPool connects, applies migrations and empties the tables. Tests
// using it share one database and therefore do not run in parallel.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := databaseURL(t)
	ctx := context.Background()

	cfg := pgstore.Config{
		ConnectionString: url,
		RetryAttempts:    1,
		MigrationsTable:  "otpvault_migrations",
	}
	pool, err := pgstore.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pgstore.Migrate(ctx, pool, cfg, logger.Discard()))
	_, err = pool.Exec(ctx, `TRUNCATE otp_entries, preferences`)
	require.NoError(t, err)
	return pool
}

func TestConnectRejectsEmptyURL(t *testing.T) {
	t.Parallel()
	_, err := pgstore.Connect(context.Background(), pgstore.Config{})
	assert.ErrorIs(t, err, pgstore.ErrEmptyConnectionString)

	_, err = pgstore.Connect(context.Background(), pgstore.Config{ConnectionString: "::not a url"})
	assert.ErrorIs(t, err, pgstore.ErrFailedToParseConfig)
}

func TestSecrets(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := pgstore.NewSecrets(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	a := vault.Entry{
		ID: uuid.New(),
		Descriptor: otp.Descriptor{
			Issuer: "Example", AccountName: "a", Secret: []byte("a"),
			Algorithm: otp.AlgorithmSHA256, Digits: 8, Kind: otp.KindHOTP, Counter: 7,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	b := vault.Entry{
		ID:         uuid.New(),
		Descriptor: otp.Descriptor{AccountName: "b", Secret: []byte("b"), Algorithm: otp.AlgorithmSHA1, Digits: 6, Kind: otp.KindTOTP, Period: 30},
		CreatedAt:  now.Add(time.Second),
		UpdatedAt:  now.Add(time.Second),
	}
	require.NoError(t, s.Put(ctx, b))
	require.NoError(t, s.Put(ctx, a))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, a.Descriptor, all[0].Descriptor)
	assert.True(t, a.CreatedAt.Equal(all[0].CreatedAt))

	a.Descriptor.Secret = []byte("A")
	b.Descriptor.Secret = []byte("B")
	require.NoError(t, s.UpdateAll(ctx, []vault.Entry{a, b}))
	got, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("B"), got.Descriptor.Secret)

	require.NoError(t, s.Delete(ctx, a.ID))
	_, err = s.Get(ctx, a.ID)
	assert.ErrorIs(t, err, vault.ErrEntryNotFound)
	assert.ErrorIs(t, s.Delete(ctx, a.ID), vault.ErrEntryNotFound)
}

func TestPreferencesWatch(t *testing.T) {
	pool := testPool(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := pgstore.NewPreferences(pool, logger.Discard())

	v, err := p.Get(ctx, "clock.server")
	require.NoError(t, err)
	assert.Nil(t, v)

	updates, err := p.Watch(ctx, "clock.server")
	require.NoError(t, err)

	require.NoError(t, p.Set(ctx, "other", []byte("x")))
	require.NoError(t, p.Set(ctx, "clock.server", []byte("time.example.com")))

	select {
	case got := <-updates:
		assert.Equal(t, []byte("time.example.com"), got)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification")
	}

	require.NoError(t, p.Delete(ctx, "clock.server"))
	select {
	case got := <-updates:
		assert.Empty(t, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-updates
		return !open
	}, 5*time.Second, 10*time.Millisecond)
}

func TestVaultOnPostgres(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	open := func() *vault.Vault {
		v := vault.New(pgstore.NewSecrets(pool), pgstore.NewPreferences(pool, logger.Discard()),
			vault.WithLogger(logger.Discard()), vault.WithIterations(1000))
		require.NoError(t, v.Open(ctx))
		return v
	}

	v := open()
	_, err := v.AddEntry(ctx, otp.Descriptor{AccountName: "alice", Secret: []byte("alice"), Kind: otp.KindTOTP})
	require.NoError(t, err)
	require.NoError(t, v.SetupPassword(ctx, "pw"))

	v = open()
	assert.Equal(t, vault.PasswordProtected, v.Level())
	require.NoError(t, v.UnlockWithPassword(ctx, "pw"))
	entries, err := v.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []byte("alice"), entries[0].Descriptor.Secret)
}
