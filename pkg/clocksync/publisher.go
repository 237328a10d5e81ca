package clocksync

import (
	"context"
	"sync"
)

// publisher fans ticks out to subscribers. A subscriber that has not drained
// its buffer misses the tick; the next one carries the same information.
type publisher struct {
	mu   sync.RWMutex
	subs map[chan Tick]struct{}
	size int
}

func newPublisher(size int) *publisher {
	return &publisher{
		subs: make(map[chan Tick]struct{}),
		size: max(size, 1),
	}
}

func (p *publisher) subscribe(ctx context.Context) <-chan Tick {
	ch := make(chan Tick, p.size)

	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.subs, ch)
		close(ch)
		p.mu.Unlock()
	}()

	return ch
}

func (p *publisher) publish(t Tick) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for ch := range p.subs {
		select {
		case ch <- t:
		default:
		}
	}
}
