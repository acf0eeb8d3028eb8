// Package memory provides in-process slots for development and for running the
// workers inside the front-end process.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/resort-relay/internal/slot"
)

// Slot stores one value in memory and wakes waiters on every change.
type Slot struct {
	mu      sync.RWMutex
	value   string
	changed chan struct{}
}

// NewSlot returns an empty Slot.
func NewSlot() *Slot {
	return &Slot{changed: make(chan struct{})}
}

// Write replaces the stored value.
func (s *Slot) Write(_ context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
	s.notifyLocked()
	return nil
}

// Read returns the stored value without consuming it.
func (s *Slot) Read(_ context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.value != "", nil
}

// Clear empties the slot.
func (s *Slot) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == "" {
		return nil
	}
	s.value = ""
	s.notifyLocked()
	return nil
}

// Changed returns a channel closed by the next Write or Clear.
func (s *Slot) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

func (s *Slot) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Store hands out named in-memory slots. Opening the same name twice returns
// the same Slot.
type Store struct {
	mu    sync.Mutex
	slots map[string]*Slot
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{slots: make(map[string]*Slot)}
}

// Open returns the slot registered under name, creating it on first use.
func (s *Store) Open(name string) (slot.Slot, error) {
	if err := slot.ValidateName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[name]
	if !ok {
		sl = NewSlot()
		s.slots[name] = sl
	}
	return sl, nil
}
