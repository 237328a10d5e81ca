// Package clocksync keeps a network-derived offset for the local clock and
// publishes corrected time.
//
// A Source owns a single offset. Each successful Sync replaces it wholesale;
// samples are never averaged. A failed Sync leaves the previous offset (zero
// before the first success) in place, so code generation degrades to the
// local clock instead of stalling.
//
// # Usage
//
//	src, err := clocksync.New(ntp.NewClient(),
//	    clocksync.WithServer("time.cloudflare.com"),
//	    clocksync.WithPreferences(prefs, clocksync.DefaultServerKey),
//	    clocksync.WithRegisterer(prometheus.DefaultRegisterer),
//	)
//	if err != nil {
//	    return err
//	}
//	go src.Run(ctx)
//
//	for tick := range src.Subscribe(ctx) {
//	    code, _ := desc.Code(tick.Corrected)
//	}
//
// # Ticking
//
// While Run is active one ticker goroutine emits a Tick per interval. Every
// new offset cancels the running ticker, waits for it to exit and starts a
// replacement whose first tick lands on the next whole interval of corrected
// time. Slow subscribers miss ticks rather than block the ticker.
//
// # Error Handling
//
// Sync returns the ntp package errors (ntp.ErrSyncTimeout,
// ntp.ErrSyncUnreachable, ntp.ErrInvalidResponse) unchanged. With
// WithSyncLimit set, a Sync over the limit returns ErrRateLimited without
// querying the server. Run logs these errors and keeps going.
package clocksync
