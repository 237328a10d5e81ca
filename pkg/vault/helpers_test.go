package vault_test

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/otpvault/pkg/keys"
	"github.com/dmitrymomot/otpvault/pkg/logger"
	"github.com/dmitrymomot/otpvault/pkg/otp"
	"github.com/dmitrymomot/otpvault/pkg/store/memstore"
	"github.com/dmitrymomot/otpvault/pkg/vault"
)

var (
	errRand  = errors.New("entropy source exhausted")
	errStore = errors.New("disk full")
)

// flakyRand fails the nth Read after arm(n) is called.
type flakyRand struct {
	mu     sync.Mutex
	failAt int
	reads  int
}

func (r *flakyRand) arm(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAt, r.reads = n, 0
}

func (r *flakyRand) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.failAt > 0 && r.reads == r.failAt {
		r.failAt = 0
		return 0, errRand
	}
	return rand.Read(p)
}

type flakySecrets struct {
	*memstore.Secrets
	failUpdateAll atomic.Bool
	failPut       atomic.Bool
}

func (s *flakySecrets) UpdateAll(ctx context.Context, entries []vault.Entry) error {
	if s.failUpdateAll.Load() {
		return errStore
	}
	return s.Secrets.UpdateAll(ctx, entries)
}

func (s *flakySecrets) Put(ctx context.Context, e vault.Entry) error {
	if s.failPut.Load() {
		return errStore
	}
	return s.Secrets.Put(ctx, e)
}

type flakyPrefs struct {
	*memstore.Preferences
	mu        sync.Mutex
	failWrite string
}

func (p *flakyPrefs) failOn(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWrite = key
}

func (p *flakyPrefs) shouldFail(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failWrite != "" && p.failWrite == key
}

func (p *flakyPrefs) Set(ctx context.Context, key string, value []byte) error {
	if p.shouldFail(key) {
		return errStore
	}
	return p.Preferences.Set(ctx, key, value)
}

func (p *flakyPrefs) Delete(ctx context.Context, key string) error {
	if p.shouldFail(key) {
		return errStore
	}
	return p.Preferences.Delete(ctx, key)
}

type device struct {
	mu          sync.Mutex
	fingerprint string
}

func (d *device) enrollment(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fingerprint, nil
}

func (d *device) enroll(fp string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fingerprint = fp
}

// prompt approves operations on the keystore unless told otherwise.
type prompt struct {
	ks     *keys.SoftwareKeystore
	mu     sync.Mutex
	result error
	block  bool
}

func (p *prompt) set(result error, block bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result, p.block = result, block
}

func (p *prompt) CanAuthenticate(context.Context) bool { return true }

func (p *prompt) Authenticate(ctx context.Context, op keys.Operation) error {
	p.mu.Lock()
	result, block := p.result, p.block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if result != nil {
		return result
	}
	return p.ks.Confirm(op)
}

type fixture struct {
	vault   *vault.Vault
	secrets *flakySecrets
	prefs   *flakyPrefs
	rand    *flakyRand
	device  *device
	prompt  *prompt
	bio     *keys.BiometricWrapper
}

func newFixture(t *testing.T, opts ...vault.Option) *fixture {
	t.Helper()

	f := &fixture{
		secrets: &flakySecrets{Secrets: memstore.NewSecrets()},
		prefs:   &flakyPrefs{Preferences: memstore.NewPreferences()},
		rand:    &flakyRand{},
		device:  &device{fingerprint: "finger-1"},
	}
	ks := keys.NewSoftwareKeystore(f.device.enrollment, nil)
	f.prompt = &prompt{ks: ks}
	f.bio = keys.NewBiometricWrapper(ks, f.prompt, keys.WithPromptTimeout(100*time.Millisecond))

	f.vault = f.reopen(t, opts...)
	return f
}

// reopen builds a fresh Vault over the fixture's stores.
func (f *fixture) reopen(t *testing.T, opts ...vault.Option) *vault.Vault {
	t.Helper()
	base := []vault.Option{
		vault.WithLogger(logger.Discard()),
		vault.WithRand(f.rand),
		vault.WithBiometric(f.bio),
	}
	v := vault.New(f.secrets, f.prefs, append(base, opts...)...)
	require.NoError(t, v.Open(context.Background()))
	return v
}

func (f *fixture) addTOTP(t *testing.T, secret string) vault.Entry {
	t.Helper()
	e, err := f.vault.AddEntry(context.Background(), otp.Descriptor{
		Issuer:      "Example",
		AccountName: secret,
		Secret:      []byte(secret),
		Kind:        otp.KindTOTP,
	})
	require.NoError(t, err)
	return e
}

// stored returns the persisted secrets keyed by account name.
func (f *fixture) stored(t *testing.T) map[string][]byte {
	t.Helper()
	all, err := f.secrets.GetAll(context.Background())
	require.NoError(t, err)
	out := make(map[string][]byte, len(all))
	for _, e := range all {
		out[e.Descriptor.AccountName] = e.Descriptor.Secret
	}
	return out
}

// plaintexts returns decrypted secrets keyed by account name.
func plaintexts(t *testing.T, v *vault.Vault) map[string]string {
	t.Helper()
	all, err := v.Entries(context.Background())
	require.NoError(t, err)
	out := make(map[string]string, len(all))
	for _, e := range all {
		out[e.Descriptor.AccountName] = string(e.Descriptor.Secret)
	}
	return out
}
