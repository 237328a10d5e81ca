package memstore

import (
	"bytes"
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/otpvault/pkg/vault"
)

// Secrets is an in-memory vault.SecretStore. Stored bytes are copied on the
// way in and out.
type Secrets struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]vault.Entry
}

// NewSecrets returns an empty in-memory SecretStore.
func NewSecrets() *Secrets {
	return &Secrets{entries: make(map[uuid.UUID]vault.Entry)}
}

// GetAll returns entries ordered by creation time.
func (s *Secrets) GetAll(_ context.Context) ([]vault.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]vault.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, clone(e))
	}
	slices.SortFunc(out, func(a, b vault.Entry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

// Get returns a copy of the entry or vault.ErrEntryNotFound.
func (s *Secrets) Get(_ context.Context, id uuid.UUID) (vault.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return vault.Entry{}, vault.ErrEntryNotFound
	}
	return clone(e), nil
}

func (s *Secrets) Put(_ context.Context, e vault.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = clone(e)
	return nil
}

// Delete removes an entry or returns vault.ErrEntryNotFound.
func (s *Secrets) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return vault.ErrEntryNotFound
	}
	delete(s.entries, id)
	return nil
}

// UpdateAll replaces the given rows under one lock. Unknown IDs are inserted.
func (s *Secrets) UpdateAll(_ context.Context, entries []vault.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[e.ID] = clone(e)
	}
	return nil
}

func clone(e vault.Entry) vault.Entry {
	e.Descriptor.Secret = bytes.Clone(e.Descriptor.Secret)
	return e
}
