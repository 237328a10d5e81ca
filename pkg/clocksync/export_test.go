package clocksync

// ActiveTickers reports how many ticker goroutines are alive.
func (s *Source) ActiveTickers() int {
	return int(s.tickers.Load())
}
