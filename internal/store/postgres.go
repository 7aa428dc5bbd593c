package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sparkpark/navigator/internal/lib/geo"
)

// Schema the Postgres stores expect. Applied by migration tooling, kept here
// as the single reference:
//
//	CREATE TABLE saved_parkings (
//	    id         TEXT PRIMARY KEY,
//	    label      TEXT NOT NULL,
//	    address    TEXT NOT NULL DEFAULT '',
//	    latitude   DOUBLE PRECISION NOT NULL,
//	    longitude  DOUBLE PRECISION NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE search_history (
//	    id          TEXT PRIMARY KEY,
//	    query       TEXT NOT NULL,
//	    address     TEXT NOT NULL DEFAULT '',
//	    latitude    DOUBLE PRECISION NOT NULL,
//	    longitude   DOUBLE PRECISION NOT NULL,
//	    searched_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);

// PostgresSavedParking is a SavedParkingStore on a pgx connection pool.
type PostgresSavedParking struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	subs    map[uint64]func()
	nextSub uint64
}

// NewPostgresSavedParking wraps an existing pool.
func NewPostgresSavedParking(pool *pgxpool.Pool) *PostgresSavedParking {
	return &PostgresSavedParking{
		pool: pool,
		subs: make(map[uint64]func()),
	}
}

// Save inserts or updates a parking spot.
func (p *PostgresSavedParking) Save(ctx context.Context, parking SavedParking) (SavedParking, error) {
	if parking.ID == "" {
		parking.ID = newID()
	}

	err := p.pool.QueryRow(ctx, `
		INSERT INTO saved_parkings (id, label, address, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET label = EXCLUDED.label, address = EXCLUDED.address,
		    latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude
		RETURNING created_at
	`,
		parking.ID,
		parking.Label,
		parking.Address,
		parking.Point.Latitude,
		parking.Point.Longitude,
	).Scan(&parking.CreatedAt)
	if err != nil {
		return SavedParking{}, fmt.Errorf("saving parking: %w", err)
	}

	p.notify()
	return parking, nil
}

// List returns every saved parking, newest first.
func (p *PostgresSavedParking) List(ctx context.Context) ([]SavedParking, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, label, address, latitude, longitude, created_at
		FROM saved_parkings
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing parkings: %w", err)
	}
	defer rows.Close()

	var out []SavedParking
	for rows.Next() {
		var sp SavedParking
		var lat, lon float64
		if err := rows.Scan(&sp.ID, &sp.Label, &sp.Address, &lat, &lon, &sp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning parking: %w", err)
		}
		sp.Point = geo.Point{Latitude: lat, Longitude: lon}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// Delete removes the parking with the given id.
func (p *PostgresSavedParking) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM saved_parkings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting parking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	p.notify()
	return nil
}

// Subscribe registers fn to run after every mutation on this instance.
func (p *PostgresSavedParking) Subscribe(fn func()) (unsubscribe func()) {
	p.mu.Lock()
	p.nextSub++
	id := p.nextSub
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *PostgresSavedParking) notify() {
	p.mu.Lock()
	fns := make([]func(), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// PostgresSearchHistory is a SearchHistoryStore on a pgx connection pool.
type PostgresSearchHistory struct {
	pool *pgxpool.Pool
}

// NewPostgresSearchHistory wraps an existing pool.
func NewPostgresSearchHistory(pool *pgxpool.Pool) *PostgresSearchHistory {
	return &PostgresSearchHistory{pool: pool}
}

// Add inserts a history entry.
func (p *PostgresSearchHistory) Add(ctx context.Context, entry SearchEntry) (SearchEntry, error) {
	if entry.ID == "" {
		entry.ID = newID()
	}

	err := p.pool.QueryRow(ctx, `
		INSERT INTO search_history (id, query, address, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING searched_at
	`,
		entry.ID,
		entry.Query,
		entry.Address,
		entry.Point.Latitude,
		entry.Point.Longitude,
	).Scan(&entry.SearchedAt)
	if err != nil {
		return SearchEntry{}, fmt.Errorf("adding search entry: %w", err)
	}
	return entry, nil
}

// Recent returns up to limit entries, newest first.
func (p *PostgresSearchHistory) Recent(ctx context.Context, limit int) ([]SearchEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, query, address, latitude, longitude, searched_at
		FROM search_history
		ORDER BY searched_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing search history: %w", err)
	}
	defer rows.Close()

	var out []SearchEntry
	for rows.Next() {
		var se SearchEntry
		var lat, lon float64
		if err := rows.Scan(&se.ID, &se.Query, &se.Address, &lat, &lon, &se.SearchedAt); err != nil {
			return nil, fmt.Errorf("scanning search entry: %w", err)
		}
		se.Point = geo.Point{Latitude: lat, Longitude: lon}
		out = append(out, se)
	}
	return out, rows.Err()
}

// Clear drops all history.
func (p *PostgresSearchHistory) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM search_history`); err != nil {
		return fmt.Errorf("clearing search history: %w", err)
	}
	return nil
}
