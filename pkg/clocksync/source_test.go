package clocksync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/otpvault/pkg/clocksync"
	"github.com/dmitrymomot/otpvault/pkg/logger"
	"github.com/dmitrymomot/otpvault/pkg/ntp"
)

type fakeExchanger struct {
	mu      sync.Mutex
	offsets map[string]time.Duration
	errs    map[string]error
	calls   []string
}

func newFakeExchanger() *fakeExchanger {
	return &fakeExchanger{
		offsets: make(map[string]time.Duration),
		errs:    make(map[string]error),
	}
}

func (f *fakeExchanger) set(host string, offset time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets[host] = offset
	f.errs[host] = err
}

func (f *fakeExchanger) Query(_ context.Context, host string) (*ntp.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, host)
	if err := f.errs[host]; err != nil {
		return nil, err
	}
	off, ok := f.offsets[host]
	if !ok {
		return nil, ntp.ErrSyncUnreachable
	}
	return &ntp.Response{
		Server:         host,
		Offset:         off,
		RoundTripDelay: 20 * time.Millisecond,
		Stratum:        2,
		ServerTime:     time.Now().Add(off),
	}, nil
}

func (f *fakeExchanger) QueryAll(ctx context.Context, hosts ...string) ([]ntp.Result, error) {
	if len(hosts) == 0 {
		return nil, ntp.ErrNoServers
	}
	out := make([]ntp.Result, len(hosts))
	for i, h := range hosts {
		resp, err := f.Query(ctx, h)
		out[i] = ntp.Result{Server: h, Response: resp, Err: err}
	}
	return out, nil
}

func (f *fakeExchanger) queried(host string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == host {
			return true
		}
	}
	return false
}

type fakePrefs struct {
	value   []byte
	updates chan []byte
}

func (p *fakePrefs) Get(context.Context, string) ([]byte, error) { return p.value, nil }

func (p *fakePrefs) Watch(context.Context, string) (<-chan []byte, error) {
	return p.updates, nil
}

func newSource(t *testing.T, ex clocksync.Exchanger, opts ...clocksync.Option) *clocksync.Source {
	t.Helper()
	opts = append([]clocksync.Option{clocksync.WithLogger(logger.Discard())}, opts...)
	src, err := clocksync.New(ex, opts...)
	require.NoError(t, err)
	return src
}

func TestSyncReplacesOffset(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ex := newFakeExchanger()
	ex.set("a", 1500*time.Millisecond, nil)
	ex.set("b", -300*time.Millisecond, nil)

	src := newSource(t, ex,
		clocksync.WithServer("a"),
		clocksync.WithClock(func() time.Time { return base }),
	)
	assert.Equal(t, time.Duration(0), src.Offset())
	assert.Equal(t, base, src.Now())

	resp, err := src.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, resp.Offset)
	assert.Equal(t, base.Add(1500*time.Millisecond), src.Now())
	assert.Equal(t, base.Unix()+1, src.Unix())

	// the next sample replaces, never averages
	src.SetServer("b")
	_, err = src.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -300*time.Millisecond, src.Offset())
	assert.Equal(t, "b", src.LastSync().Server)
}

func TestSyncFailureKeepsOffset(t *testing.T) {
	t.Parallel()

	ex := newFakeExchanger()
	ex.set("down", 0, errors.Join(ntp.ErrSyncTimeout, context.DeadlineExceeded))
	ex.set("up", time.Second, nil)

	src := newSource(t, ex, clocksync.WithServer("down"))

	_, err := src.Sync(context.Background())
	require.ErrorIs(t, err, ntp.ErrSyncTimeout)
	assert.Equal(t, time.Duration(0), src.Offset())
	assert.Nil(t, src.LastSync())

	src.SetServer("up")
	_, err = src.Sync(context.Background())
	require.NoError(t, err)

	src.SetServer("down")
	_, err = src.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, time.Second, src.Offset())

	src.SetServer("")
	_, err = src.Sync(context.Background())
	assert.ErrorIs(t, err, clocksync.ErrNoServer)
}

func TestCompareDoesNotApplyOffset(t *testing.T) {
	t.Parallel()

	ex := newFakeExchanger()
	ex.set("a", time.Second, nil)
	ex.set("b", 0, ntp.ErrSyncUnreachable)
	ex.set("c", 2*time.Second, nil)

	src := newSource(t, ex, clocksync.WithCandidates("a", "b", "c"))

	results, err := src.Compare(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ntp.ErrSyncUnreachable)
	assert.Equal(t, 2*time.Second, results[2].Response.Offset)
	assert.Equal(t, time.Duration(0), src.Offset())

	results, err = src.Compare(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestRunPublishesAlignedTicks(t *testing.T) {
	t.Parallel()

	ex := newFakeExchanger()
	ex.set("a", 250*time.Millisecond, nil)

	interval := 100 * time.Millisecond
	src := newSource(t, ex,
		clocksync.WithServer("a"),
		clocksync.WithTickInterval(interval),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := src.Subscribe(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- src.Run(ctx) }()

	require.Eventually(t, func() bool { return src.Offset() == 250*time.Millisecond }, time.Second, 5*time.Millisecond)

	var tick clocksync.Tick
	require.Eventually(t, func() bool {
		select {
		case tick = <-ticks:
			return tick.Offset == 250*time.Millisecond
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	phase := time.Duration(tick.Corrected.UnixNano() % int64(interval))
	assert.Less(t, phase, 50*time.Millisecond, "tick should land just after an interval boundary")
	assert.ErrorIs(t, src.Run(ctx), clocksync.ErrAlreadyRunning)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, src.ActiveTickers())

	_, ok := <-ticks
	for ok {
		_, ok = <-ticks
	}
}

func TestRunKeepsSingleTicker(t *testing.T) {
	t.Parallel()

	ex := newFakeExchanger()
	ex.set("a", 10*time.Millisecond, nil)
	ex.set("b", 20*time.Millisecond, nil)

	prefs := &fakePrefs{value: []byte("a"), updates: make(chan []byte)}
	src := newSource(t, ex,
		clocksync.WithServer("ignored"),
		clocksync.WithPreferences(prefs, ""),
		clocksync.WithTickInterval(10*time.Millisecond),
		clocksync.WithSyncInterval(15*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = src.Run(ctx) }()

	require.Eventually(t, func() bool { return src.LastSync() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "a", src.Server())
	assert.False(t, ex.queried("ignored"))

	prefs.updates <- []byte("b")
	require.Eventually(t, func() bool { return src.Offset() == 20*time.Millisecond }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "b", src.Server())

	// periodic resyncs keep restarting the ticker
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		assert.LessOrEqual(t, src.ActiveTickers(), 1)
		time.Sleep(3 * time.Millisecond)
	}
}

func TestSyncOutsideRunDoesNotTick(t *testing.T) {
	t.Parallel()

	ex := newFakeExchanger()
	ex.set("a", time.Second, nil)
	src := newSource(t, ex, clocksync.WithServer("a"), clocksync.WithTickInterval(10*time.Millisecond))

	_, err := src.Sync(context.Background())
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, src.ActiveTickers())
}

func TestSyncLimit(t *testing.T) {
	t.Parallel()

	ex := newFakeExchanger()
	ex.set("a", time.Second, nil)
	src := newSource(t, ex, clocksync.WithServer("a"), clocksync.WithSyncLimit(time.Hour, 2))

	for range 2 {
		_, err := src.Sync(context.Background())
		require.NoError(t, err)
	}

	ex.set("a", 3*time.Second, nil)
	_, err := src.Sync(context.Background())
	assert.ErrorIs(t, err, clocksync.ErrRateLimited)
	assert.Equal(t, time.Second, src.Offset())
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	ex := newFakeExchanger()
	ex.set("a", 2*time.Second, nil)
	ex.set("b", 0, errors.Join(ntp.ErrSyncTimeout, context.DeadlineExceeded))

	reg := prometheus.NewRegistry()
	src := newSource(t, ex, clocksync.WithServer("a"), clocksync.WithRegisterer(reg))

	_, err := src.Sync(context.Background())
	require.NoError(t, err)
	src.SetServer("b")
	_, _ = src.Sync(context.Background())
	_, _ = src.Sync(context.Background())

	values := gather(t, reg)
	assert.Equal(t, 1.0, values["otpvault_clock_syncs_total/success"])
	assert.Equal(t, 2.0, values["otpvault_clock_syncs_total/timeout"])
	assert.Equal(t, 2.0, values["otpvault_clock_offset_seconds"])
	assert.InDelta(t, 0.02, values["otpvault_clock_round_trip_seconds"], 1e-9)

	_, err = clocksync.New(ex, clocksync.WithRegisterer(reg))
	assert.ErrorIs(t, err, clocksync.ErrMetrics)
}

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, l := range m.GetLabel() {
				name += "/" + l.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[name] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[name] = m.GetGauge().GetValue()
			}
		}
	}
	return values
}
