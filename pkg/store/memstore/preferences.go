package memstore

import (
	"bytes"
	"context"
	"sync"
)

// Preferences is an in-memory vault.PreferenceStore.
type Preferences struct {
	mu       sync.RWMutex
	values   map[string][]byte
	watchers map[string]map[chan []byte]struct{}
}

// NewPreferences returns an empty in-memory PreferenceStore.
func NewPreferences() *Preferences {
	return &Preferences{
		values:   make(map[string][]byte),
		watchers: make(map[string]map[chan []byte]struct{}),
	}
}

// Get returns nil for a missing key.
func (p *Preferences) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return bytes.Clone(p.values[key]), nil
}

// Set stores a copy of value and notifies watchers of key.
func (p *Preferences) Set(_ context.Context, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = bytes.Clone(value)
	p.notify(key, value)
	return nil
}

// Delete removes key. Watchers receive an empty value.
func (p *Preferences) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.values[key]; !ok {
		return nil
	}
	delete(p.values, key)
	p.notify(key, nil)
	return nil
}

// Watch delivers each new value of key. A watcher that falls behind only
// sees the latest value. The channel closes when ctx is done.
func (p *Preferences) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	ch := make(chan []byte, 1)

	p.mu.Lock()
	if p.watchers[key] == nil {
		p.watchers[key] = make(map[chan []byte]struct{})
	}
	p.watchers[key][ch] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.watchers[key], ch)
		if len(p.watchers[key]) == 0 {
			delete(p.watchers, key)
		}
		close(ch)
		p.mu.Unlock()
	}()

	return ch, nil
}

// notify must be called with mu held.
func (p *Preferences) notify(key string, value []byte) {
	for ch := range p.watchers[key] {
		v := bytes.Clone(value)
		select {
		case ch <- v:
		default:
			// replace the stale value
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}
