// Package server exposes the routing, search and navigation services over
// HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sparkpark/navigator/internal/cache"
	"github.com/sparkpark/navigator/internal/clients/parking"
	"github.com/sparkpark/navigator/internal/config"
	"github.com/sparkpark/navigator/internal/lib/geo"
	"github.com/sparkpark/navigator/internal/placeindex"
	"github.com/sparkpark/navigator/internal/routing"
	"github.com/sparkpark/navigator/internal/search"
	"github.com/sparkpark/navigator/internal/store"
)

// Deps are the collaborators the server dispatches to.
type Deps struct {
	Fetcher   *routing.Fetcher
	Estimator *routing.Estimator
	Optimizer *routing.Optimizer
	Gateway   *search.Gateway
	Parking   *parking.Client // nil when no recommendation service is configured
	Parkings  store.SavedParkingStore
	History   store.SearchHistoryStore
	Index     *placeindex.Index
	Cache     cache.Store
	Geo       geo.Utils
	Sessions  *SessionHub
}

// Server is the HTTP surface.
type Server struct {
	log  *zap.SugaredLogger
	cfg  *config.Config
	deps Deps
	http *http.Server
}

// New creates a Server; call Start to serve.
func New(log *zap.SugaredLogger, cfg *config.Config, deps Deps) *Server {
	s := &Server{
		log:  log,
		cfg:  cfg,
		deps: deps,
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table. Exposed for tests.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /v1/route", s.handleRoute)
	mux.HandleFunc("POST /v1/eta", s.handleEta)
	mux.HandleFunc("POST /v1/optimize", s.handleOptimize)
	mux.HandleFunc("GET /v1/route.kml", s.handleRouteKML)

	mux.HandleFunc("GET /v1/geocode", s.handleGeocode)
	mux.HandleFunc("GET /v1/reverse", s.handleReverse)
	mux.HandleFunc("GET /v1/recommendations", s.handleRecommendations)

	mux.HandleFunc("GET /v1/parkings", s.handleListParkings)
	mux.HandleFunc("POST /v1/parkings", s.handleSaveParking)
	mux.HandleFunc("DELETE /v1/parkings/{id}", s.handleDeleteParking)
	mux.HandleFunc("GET /v1/parkings/nearby", s.handleNearbyParkings)

	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("DELETE /v1/history", s.handleClearHistory)

	mux.HandleFunc("GET /v1/sessions/{id}/ws", s.deps.Sessions.Handle)

	// CORS sits outside auth so preflights never hit the token check.
	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	return handler
}

// Start serves until ctx is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
