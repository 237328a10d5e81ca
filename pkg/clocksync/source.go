package clocksync

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/dmitrymomot/otpvault/pkg/logger"
	"github.com/dmitrymomot/otpvault/pkg/ntp"
)

const (
	DefaultServer       = "pool.ntp.org"
	DefaultSyncInterval = 15 * time.Minute
	DefaultTickInterval = time.Second
	// DefaultServerKey is the preference key holding the configured server.
	DefaultServerKey = "clock.server"
)

// Tick is published once per tick interval.
type Tick struct {
	Corrected time.Time
	Offset    time.Duration
}

// Exchanger performs NTP exchanges. *ntp.Client satisfies it.
type Exchanger interface {
	Query(ctx context.Context, host string) (*ntp.Response, error)
	QueryAll(ctx context.Context, hosts ...string) ([]ntp.Result, error)
}

// Preferences is the read side of the preference store: the current value
// of a key and a stream of its updates. Get returns nil for a missing key.
type Preferences interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Watch(ctx context.Context, key string) (<-chan []byte, error)
}

// Option configures a Source.
type Option func(*Source)

// WithServer sets the server Sync queries. Empty keeps DefaultServer.
func WithServer(host string) Option {
	return func(s *Source) {
		if host != "" {
			s.server = host
		}
	}
}

// WithCandidates sets the servers Compare queries when called without hosts.
func WithCandidates(hosts ...string) Option {
	return func(s *Source) { s.candidates = hosts }
}

// WithSyncInterval sets how often Run re-syncs. Non-positive values are ignored.
func WithSyncInterval(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.syncInterval = d
		}
	}
}

// WithTickInterval sets the spacing of published ticks. Non-positive values are ignored.
func WithTickInterval(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithClock replaces time.Now as the local clock.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSyncLimit caps how often Sync may reach the network. Calls over the
// limit fail with ErrRateLimited and keep the current offset.
func WithSyncLimit(every time.Duration, burst int) Option {
	return func(s *Source) {
		if every > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Every(every), burst)
		}
	}
}

// WithRegisterer registers the source's Prometheus collectors on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Source) { s.registerer = reg }
}

// WithPreferences makes Run read the server from prefs under key and follow
// its updates. An empty key means DefaultServerKey.
func WithPreferences(prefs Preferences, key string) Option {
	return func(s *Source) {
		s.prefs = prefs
		if key != "" {
			s.prefKey = key
		}
	}
}

// Source owns the clock offset and publishes corrected time.
type Source struct {
	exchanger    Exchanger
	now          func() time.Time
	log          *slog.Logger
	metrics      *metrics
	registerer   prometheus.Registerer
	prefs        Preferences
	prefKey      string
	candidates   []string
	syncInterval time.Duration
	tickInterval time.Duration
	pub          *publisher
	limiter      *rate.Limiter

	mu       sync.RWMutex
	server   string
	offset   time.Duration
	lastSync *ntp.Response

	// ticker state; runCtx is non-nil while Run is active.
	tickerMu     sync.Mutex
	runCtx       context.Context
	tickerCancel context.CancelFunc
	tickerDone   chan struct{}
	tickers      atomic.Int32
}

// New creates a Source. The offset starts at zero.
func New(exchanger Exchanger, opts ...Option) (*Source, error) {
	s := &Source{
		exchanger:    exchanger,
		now:          time.Now,
		log:          slog.Default(),
		server:       DefaultServer,
		prefKey:      DefaultServerKey,
		syncInterval: DefaultSyncInterval,
		tickInterval: DefaultTickInterval,
		pub:          newPublisher(1),
	}
	for _, opt := range opts {
		opt(s)
	}

	m, err := newMetrics(s.registerer)
	if err != nil {
		return nil, err
	}
	s.metrics = m
	s.log = s.log.With(logger.Component("clocksync"))

	return s, nil
}

// Now returns local time corrected by the current offset.
func (s *Source) Now() time.Time {
	return s.now().Add(s.Offset())
}

// Unix returns corrected epoch seconds, the TOTP input.
func (s *Source) Unix() int64 {
	return s.Now().Unix()
}

// Offset returns the offset applied by the last successful Sync.
func (s *Source) Offset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

// Server returns the host the next Sync will query.
func (s *Source) Server() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.server
}

// SetServer changes the server used by the next Sync.
func (s *Source) SetServer(host string) {
	s.mu.Lock()
	s.server = host
	s.mu.Unlock()
}

// LastSync returns the last successful exchange, or nil.
func (s *Source) LastSync() *ntp.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// Sync queries the configured server once. On success the offset is replaced
// and the ticker restarted; on failure the previous offset stays in effect
// and the error is returned.
func (s *Source) Sync(ctx context.Context) (*ntp.Response, error) {
	ctx = logger.WithOperation(ctx, "clock_sync")
	server := s.Server()
	if server == "" {
		return nil, ErrNoServer
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.log.DebugContext(ctx, "clock sync skipped", logger.Server(server))
		return nil, ErrRateLimited
	}

	start := time.Now()
	resp, err := s.exchanger.Query(ctx, server)
	s.metrics.observe(resp, err)
	if err != nil {
		s.log.WarnContext(ctx, "clock sync failed, keeping previous offset",
			logger.Server(server),
			logger.Offset(s.Offset()),
			logger.Error(err),
		)
		return nil, err
	}

	s.mu.Lock()
	s.offset = resp.Offset
	s.lastSync = resp
	s.mu.Unlock()

	s.log.InfoContext(ctx, "clock synchronised",
		logger.Server(server),
		logger.Offset(resp.Offset),
		logger.RoundTrip(resp.RoundTripDelay),
		logger.Duration(time.Since(start)),
	)

	s.restartTicker()
	return resp, nil
}

// Compare queries every host concurrently for diagnostics. It never touches
// the applied offset. Without hosts, the configured candidates are used.
func (s *Source) Compare(ctx context.Context, hosts ...string) ([]ntp.Result, error) {
	ctx = logger.WithOperation(ctx, "clock_compare")
	if len(hosts) == 0 {
		hosts = s.candidates
	}

	results, err := s.exchanger.QueryAll(ctx, hosts...)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Err != nil {
			s.log.DebugContext(ctx, "candidate failed", logger.Server(r.Server), logger.Error(r.Err))
			continue
		}
		s.log.DebugContext(ctx, "candidate offset",
			logger.Server(r.Server),
			logger.Offset(r.Response.Offset),
			logger.RoundTrip(r.Response.RoundTripDelay),
		)
	}
	return results, nil
}

// Subscribe returns a channel of ticks, closed when ctx is done. Ticks are
// only produced while Run is active.
func (s *Source) Subscribe(ctx context.Context) <-chan Tick {
	return s.pub.subscribe(ctx)
}

// Run starts ticking, syncs immediately, then re-syncs every sync interval
// and whenever the server preference changes. It blocks until ctx is done.
func (s *Source) Run(ctx context.Context) error {
	s.tickerMu.Lock()
	if s.runCtx != nil {
		s.tickerMu.Unlock()
		return ErrAlreadyRunning
	}
	s.runCtx = ctx
	s.tickerMu.Unlock()

	defer func() {
		s.tickerMu.Lock()
		s.stopTickerLocked()
		s.runCtx = nil
		s.tickerMu.Unlock()
	}()

	updates := s.watchServer(ctx)

	s.restartTicker()
	_, _ = s.Sync(ctx)

	t := time.NewTicker(s.syncInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			_, _ = s.Sync(ctx)
		case v, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			host := string(v)
			if host == "" {
				host = DefaultServer
			}
			if host == s.Server() {
				continue
			}
			s.log.InfoContext(ctx, "time server changed", logger.Server(host))
			s.SetServer(host)
			_, _ = s.Sync(ctx)
		}
	}
}

func (s *Source) watchServer(ctx context.Context) <-chan []byte {
	if s.prefs == nil {
		return nil
	}
	if v, err := s.prefs.Get(ctx, s.prefKey); err != nil {
		s.log.WarnContext(ctx, "failed to read time server preference", logger.Error(err))
	} else if len(v) > 0 {
		s.SetServer(string(v))
	}

	ch, err := s.prefs.Watch(ctx, s.prefKey)
	if err != nil {
		s.log.WarnContext(ctx, "failed to watch time server preference", logger.Error(err))
		return nil
	}
	return ch
}

// restartTicker replaces the running ticker, if Run is active. The previous
// ticker has exited before the new one starts.
func (s *Source) restartTicker() {
	s.tickerMu.Lock()
	defer s.tickerMu.Unlock()

	if s.runCtx == nil {
		return
	}
	s.stopTickerLocked()

	ctx, cancel := context.WithCancel(s.runCtx)
	done := make(chan struct{})
	s.tickerCancel, s.tickerDone = cancel, done
	go s.tick(ctx, done)
}

func (s *Source) stopTickerLocked() {
	if s.tickerCancel == nil {
		return
	}
	s.tickerCancel()
	<-s.tickerDone
	s.tickerCancel, s.tickerDone = nil, nil
}

func (s *Source) tick(ctx context.Context, done chan struct{}) {
	defer close(done)
	s.tickers.Add(1)
	defer s.tickers.Add(-1)

	// first emission lands on the next whole interval of corrected time
	interval := s.tickInterval
	wait := interval - time.Duration(s.Now().UnixNano()%int64(interval))
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	s.emit()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.emit()
		}
	}
}

func (s *Source) emit() {
	off := s.Offset()
	s.pub.publish(Tick{Corrected: s.now().Add(off), Offset: off})
}
