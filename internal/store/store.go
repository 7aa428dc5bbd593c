// Package store persists the user's saved parking spots and search history.
// Two implementations exist: an in-memory store for single-node and test
// use, and a Postgres store for real deployments.
package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/sparkpark/navigator/internal/lib/geo"
)

// SavedParking is a user-labeled parking spot.
type SavedParking struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Address   string    `json:"address"`
	Point     geo.Point `json:"point"`
	CreatedAt time.Time `json:"createdAt"`
}

// SearchEntry is one resolved search the user performed.
type SearchEntry struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	Address    string    `json:"address"`
	Point      geo.Point `json:"point"`
	SearchedAt time.Time `json:"searchedAt"`
}

// SavedParkingStore persists saved parking spots. Subscribe registers a
// callback fired after every mutation, letting the place index stay current
// without polling.
type SavedParkingStore interface {
	Save(ctx context.Context, parking SavedParking) (SavedParking, error)
	List(ctx context.Context) ([]SavedParking, error)
	Delete(ctx context.Context, id string) error
	Subscribe(fn func()) (unsubscribe func())
}

// SearchHistoryStore persists search history, newest first.
type SearchHistoryStore interface {
	Add(ctx context.Context, entry SearchEntry) (SearchEntry, error)
	Recent(ctx context.Context, limit int) ([]SearchEntry, error)
	Clear(ctx context.Context) error
}

// newID returns a random 16-byte hex identifier.
func newID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
