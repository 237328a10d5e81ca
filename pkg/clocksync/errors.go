package clocksync

import "errors"

var (
	ErrAlreadyRunning = errors.New("clocksync: source is already running")
	ErrNoServer       = errors.New("clocksync: no time server configured")
	ErrMetrics        = errors.New("clocksync: failed to register metrics")
	ErrRateLimited    = errors.New("clocksync: sync rate limit exceeded")
)
