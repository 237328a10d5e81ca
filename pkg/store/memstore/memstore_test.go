package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/otpvault/pkg/otp"
	"github.com/dmitrymomot/otpvault/pkg/store/memstore"
	"github.com/dmitrymomot/otpvault/pkg/vault"
)

func entry(secret string, created time.Time) vault.Entry {
	return vault.Entry{
		ID:         uuid.New(),
		Descriptor: otp.Descriptor{AccountName: secret, Secret: []byte(secret), Kind: otp.KindTOTP},
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestSecrets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.NewSecrets()

	base := time.Now()
	b := entry("b", base.Add(time.Second))
	a := entry("a", base)
	require.NoError(t, s.Put(ctx, b))
	require.NoError(t, s.Put(ctx, a))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)

	// returned bytes are copies
	all[0].Descriptor.Secret[0] = 'x'
	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got.Descriptor.Secret)

	a.Descriptor.Secret = []byte("A")
	b.Descriptor.Secret = []byte("B")
	require.NoError(t, s.UpdateAll(ctx, []vault.Entry{a, b}))
	got, err = s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("B"), got.Descriptor.Secret)

	require.NoError(t, s.Delete(ctx, a.ID))
	_, err = s.Get(ctx, a.ID)
	assert.ErrorIs(t, err, vault.ErrEntryNotFound)
	assert.ErrorIs(t, s.Delete(ctx, a.ID), vault.ErrEntryNotFound)
}

func TestPreferencesWatch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := memstore.NewPreferences()

	v, err := p.Get(ctx, "clock.server")
	require.NoError(t, err)
	assert.Nil(t, v)

	updates, err := p.Watch(ctx, "clock.server")
	require.NoError(t, err)

	require.NoError(t, p.Set(ctx, "clock.server", []byte("a")))
	assert.Equal(t, []byte("a"), <-updates)

	// a slow watcher only sees the latest value
	require.NoError(t, p.Set(ctx, "clock.server", []byte("b")))
	require.NoError(t, p.Set(ctx, "clock.server", []byte("c")))
	assert.Equal(t, []byte("c"), <-updates)

	require.NoError(t, p.Set(ctx, "other", []byte("x")))
	require.NoError(t, p.Delete(ctx, "clock.server"))
	assert.Empty(t, <-updates)

	v, err = p.Get(ctx, "clock.server")
	require.NoError(t, err)
	assert.Nil(t, v)

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-updates
		return !ok
	}, time.Second, 5*time.Millisecond)
}
