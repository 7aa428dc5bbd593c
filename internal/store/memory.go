package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when deleting an unknown id.
var ErrNotFound = errors.New("not found")

// MemorySavedParking is an in-process SavedParkingStore.
type MemorySavedParking struct {
	mu       sync.RWMutex
	parkings map[string]SavedParking
	subs     map[uint64]func()
	nextSub  uint64
}

// NewMemorySavedParking creates an empty store.
func NewMemorySavedParking() *MemorySavedParking {
	return &MemorySavedParking{
		parkings: make(map[string]SavedParking),
		subs:     make(map[uint64]func()),
	}
}

// Save inserts or updates a parking spot. A missing ID is assigned.
func (m *MemorySavedParking) Save(ctx context.Context, parking SavedParking) (SavedParking, error) {
	m.mu.Lock()
	if parking.ID == "" {
		parking.ID = newID()
	}
	if parking.CreatedAt.IsZero() {
		parking.CreatedAt = time.Now()
	}
	m.parkings[parking.ID] = parking
	m.mu.Unlock()

	m.notify()
	return parking, nil
}

// List returns every saved parking, newest first.
func (m *MemorySavedParking) List(ctx context.Context) ([]SavedParking, error) {
	m.mu.RLock()
	out := make([]SavedParking, 0, len(m.parkings))
	for _, p := range m.parkings {
		out = append(out, p)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes the parking with the given id.
func (m *MemorySavedParking) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.parkings[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.parkings, id)
	m.mu.Unlock()

	m.notify()
	return nil
}

// Subscribe registers fn to run after every mutation.
func (m *MemorySavedParking) Subscribe(fn func()) (unsubscribe func()) {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *MemorySavedParking) notify() {
	m.mu.RLock()
	fns := make([]func(), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

// MemorySearchHistory is an in-process SearchHistoryStore with a bounded
// length.
type MemorySearchHistory struct {
	mu      sync.RWMutex
	entries []SearchEntry
	max     int
}

// NewMemorySearchHistory creates a store keeping at most max entries; 0
// means unbounded.
func NewMemorySearchHistory(max int) *MemorySearchHistory {
	return &MemorySearchHistory{max: max}
}

// Add prepends an entry, trimming the oldest past the cap.
func (m *MemorySearchHistory) Add(ctx context.Context, entry SearchEntry) (SearchEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.SearchedAt.IsZero() {
		entry.SearchedAt = time.Now()
	}
	m.entries = append([]SearchEntry{entry}, m.entries...)
	if m.max > 0 && len(m.entries) > m.max {
		m.entries = m.entries[:m.max]
	}
	return entry, nil
}

// Recent returns up to limit entries, newest first.
func (m *MemorySearchHistory) Recent(ctx context.Context, limit int) ([]SearchEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]SearchEntry(nil), m.entries[:n]...), nil
}

// Clear drops all history.
func (m *MemorySearchHistory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}
