// Package cache provides TTL caching for provider responses. Routes, ETAs
// and geocoding results are all JSON-serializable, so entries are stored as
// encoded bytes and decoded on retrieval.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store is the caching contract. A miss is (false, nil), never an error.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, out interface{}) (bool, error)
	Delete(ctx context.Context, key string) error
}

// entry is one cached item.
type entry struct {
	data      []byte
	createdAt time.Time
	expiresAt time.Time
}

// Memory is a thread-safe in-process Store.
type Memory struct {
	entries map[string]*entry
	mu      sync.RWMutex
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*entry),
	}
}

// Set stores value under key for ttl.
func (m *Memory) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for cache: %w", err)
	}

	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &entry{
		data:      data,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Get retrieves key into out when present and fresh.
func (m *Memory) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	m.mu.RLock()
	e, exists := m.entries[key]
	m.mu.RUnlock()

	if !exists || time.Now().After(e.expiresAt) {
		return false, nil
	}
	if err := json.Unmarshal(e.data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// Delete removes key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Purge drops every expired entry and returns how many were removed.
func (m *Memory) Purge() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
