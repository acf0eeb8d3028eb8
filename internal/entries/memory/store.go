// Package memory provides an in-process entries.Store for development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/resort-relay/internal/entries"
	"github.com/JakeFAU/resort-relay/internal/relay"
)

// Store keeps entries in a map.
type Store struct {
	mu    sync.RWMutex
	items map[string]entries.Entry
	ids   relay.IDGenerator
	clock relay.Clock
}

// New returns an empty Store.
func New(ids relay.IDGenerator, clock relay.Clock) *Store {
	return &Store{items: make(map[string]entries.Entry), ids: ids, clock: clock}
}

// Create stores a new entry.
func (s *Store) Create(_ context.Context, d entries.Draft) (entries.Entry, error) {
	d, err := d.Normalize()
	if err != nil {
		return entries.Entry{}, err
	}
	id, err := s.ids.NewID()
	if err != nil {
		return entries.Entry{}, fmt.Errorf("generate id: %w", err)
	}
	e := entries.Entry{
		ID:        id,
		Location:  d.Location,
		Visited:   d.Visited,
		Ranking:   d.Ranking,
		Content:   d.Content,
		CreatedAt: s.clock.Now(),
	}
	s.mu.Lock()
	s.items[id] = e
	s.mu.Unlock()
	return e, nil
}

// List returns all entries ordered by creation time, then ID.
func (s *Store) List(_ context.Context) ([]entries.Entry, error) {
	s.mu.RLock()
	out := make([]entries.Entry, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get returns one entry.
func (s *Store) Get(_ context.Context, id string) (entries.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	if !ok {
		return entries.Entry{}, entries.ErrNotFound
	}
	return e, nil
}

// Update replaces the editable fields of an entry.
func (s *Store) Update(_ context.Context, id string, d entries.Draft) (entries.Entry, error) {
	d, err := d.Normalize()
	if err != nil {
		return entries.Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return entries.Entry{}, entries.ErrNotFound
	}
	e.Location, e.Visited, e.Ranking, e.Content = d.Location, d.Visited, d.Ranking, d.Content
	s.items[id] = e
	return e, nil
}

// Delete removes an entry.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return entries.ErrNotFound
	}
	delete(s.items, id)
	return nil
}
