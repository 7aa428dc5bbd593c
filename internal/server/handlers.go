package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sparkpark/navigator/internal/clients/parking"
	"github.com/sparkpark/navigator/internal/export"
	"github.com/sparkpark/navigator/internal/lib/geo"
	"github.com/sparkpark/navigator/internal/routing"
	"github.com/sparkpark/navigator/internal/search"
	"github.com/sparkpark/navigator/internal/store"
)

// Recommendation responses are capped at the closest few candidates.
const maxRecommendations = 5

// wireEndpoint is a nullable coordinate in request bodies.
type wireEndpoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (e *wireEndpoint) point() *geo.Point {
	if e == nil {
		return nil
	}
	return &geo.Point{Latitude: e.Lat, Longitude: e.Lon}
}

type routeRequest struct {
	Origin      *wireEndpoint `json:"origin"`
	Destination *wireEndpoint `json:"destination"`
	Mode        string        `json:"mode"`
}

type optimizeRequest struct {
	Origin      *wireEndpoint  `json:"origin"`
	Destination *wireEndpoint  `json:"destination"`
	Stops       []wireEndpoint `json:"stops"`
	Mode        string         `json:"mode"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

// parseMode maps the wire mode, defaulting to car.
func parseMode(w http.ResponseWriter, raw string) (routing.TravelMode, bool) {
	if raw == "" {
		return routing.ModeCar, true
	}
	mode, err := routing.ParseTravelMode(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return mode, true
}

func queryFloat(r *http.Request, key string) (float64, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func queryPoint(r *http.Request, latKey, lonKey string) *geo.Point {
	lat, okLat := queryFloat(r, latKey)
	lon, okLon := queryFloat(r, lonKey)
	if !okLat || !okLon {
		return nil
	}
	return &geo.Point{Latitude: lat, Longitude: lon}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, ok := parseMode(w, req.Mode)
	if !ok {
		return
	}

	origin := req.Origin.point()
	dest := req.Destination.point()

	var key string
	if origin != nil && dest != nil {
		key = routeCacheKey("route", *origin, *dest, mode)
		var cached routing.RouteResult
		if hit, err := s.deps.Cache.Get(r.Context(), key, &cached); err == nil && hit {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	result, current := s.deps.Fetcher.Fetch(r.Context(), origin, dest, mode)
	if !current {
		// Superseded by a newer request on the same fetcher.
		writeJSON(w, http.StatusOK, routing.EmptyRoute())
		return
	}
	if key != "" && result.Usable() {
		if err := s.deps.Cache.Set(r.Context(), key, result, s.cfg.Cache.TTL); err != nil {
			s.log.Debugw("route cache store failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, result)
}

type etaResponse struct {
	Seconds   *float64         `json:"seconds"`
	Provider  routing.Provider `json:"provider"`
	Formatted string           `json:"formatted,omitempty"`
	ArrivesAt string           `json:"arrivesAt,omitempty"`
}

func (s *Server) handleEta(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, ok := parseMode(w, req.Mode)
	if !ok {
		return
	}

	eta := s.deps.Estimator.Estimate(r.Context(), req.Origin.point(), req.Destination.point(), mode)
	resp := etaResponse{Seconds: eta.Seconds, Provider: eta.Provider}
	if eta.Seconds != nil {
		resp.Formatted = routing.FormatDuration(*eta.Seconds)
		resp.ArrivesAt = routing.ArrivalClockTime(*eta.Seconds, time.Now())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Origin == nil || req.Destination == nil {
		writeError(w, http.StatusBadRequest, "origin and destination are required")
		return
	}
	mode, ok := parseMode(w, req.Mode)
	if !ok {
		return
	}

	stops := make([]geo.Point, len(req.Stops))
	for i, stop := range req.Stops {
		stops[i] = geo.Point{Latitude: stop.Lat, Longitude: stop.Lon}
	}

	plan, ok := s.deps.Optimizer.Optimize(r.Context(), *req.Origin.point(), stops, *req.Destination.point(), mode)
	if !ok {
		writeError(w, http.StatusConflict, "an optimization is already running")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleRouteKML(w http.ResponseWriter, r *http.Request) {
	origin := queryPoint(r, "olat", "olon")
	dest := queryPoint(r, "dlat", "dlon")
	if origin == nil || dest == nil {
		writeError(w, http.StatusBadRequest, "olat, olon, dlat and dlon are required")
		return
	}
	mode, ok := parseMode(w, r.URL.Query().Get("mode"))
	if !ok {
		return
	}

	result, current := s.deps.Fetcher.Fetch(r.Context(), origin, dest, mode)
	if !current || !result.Usable() {
		writeError(w, http.StatusBadGateway, "no route available")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "Route"
	}
	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	if err := export.WriteRouteKML(w, name, result); err != nil {
		s.log.Warnw("kml export failed", "error", err)
	}
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	ref := queryPoint(r, "lat", "lon")
	places, err := s.deps.Gateway.SearchNow(r.Context(), query, ref)
	if err != nil {
		writeError(w, http.StatusBadGateway, "geocoding failed")
		return
	}

	if len(places) > 0 {
		if _, err := s.deps.History.Add(r.Context(), store.SearchEntry{
			Query:   query,
			Address: places[0].Address,
			Point:   places[0].Point,
		}); err != nil {
			s.log.Debugw("recording search history failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, places)
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	point := queryPoint(r, "lat", "lon")
	if point == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	address, err := s.deps.Gateway.ReverseAddress(r.Context(), *point)
	if err != nil {
		writeError(w, http.StatusBadGateway, "reverse geocoding failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address":      address,
		"shortAddress": search.ShortAddress(address),
	})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Parking == nil {
		writeError(w, http.StatusServiceUnavailable, "recommendation service not configured")
		return
	}
	point := queryPoint(r, "lat", "lon")
	if point == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	recs, err := s.deps.Parking.Recommend(r.Context(), point.Latitude, point.Longitude, time.Now().Hour())
	if err != nil {
		writeError(w, http.StatusBadGateway, "recommendation service failed")
		return
	}
	writeJSON(w, http.StatusOK, s.shapeRecommendations(recs, *point, r.URL.Query().Get("q")))
}

// shapeRecommendations filters by a free-text match on name and address,
// back-fills missing distances, and keeps the closest five.
func (s *Server) shapeRecommendations(recs []parking.Recommendation, ref geo.Point, query string) []parking.Recommendation {
	query = strings.ToLower(strings.TrimSpace(query))

	shaped := make([]parking.Recommendation, 0, len(recs))
	for _, rec := range recs {
		if query != "" && !recommendationMatches(rec, query) {
			continue
		}
		if rec.DistanceKm == 0 {
			if d, err := s.deps.Geo.PointToPoint(ref, geo.Point{Latitude: rec.Lat, Longitude: rec.Lng}); err == nil {
				rec.DistanceKm = d / 1000
			}
		}
		shaped = append(shaped, rec)
	}

	sort.SliceStable(shaped, func(i, j int) bool {
		return shaped[i].DistanceKm < shaped[j].DistanceKm
	})
	if len(shaped) > maxRecommendations {
		shaped = shaped[:maxRecommendations]
	}
	return shaped
}

func recommendationMatches(rec parking.Recommendation, query string) bool {
	if rec.Name != nil && strings.Contains(strings.ToLower(*rec.Name), query) {
		return true
	}
	if rec.Address != nil && strings.Contains(strings.ToLower(*rec.Address), query) {
		return true
	}
	return rec.City != nil && strings.Contains(strings.ToLower(*rec.City), query)
}

type saveParkingRequest struct {
	Label   string  `json:"label"`
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (s *Server) handleListParkings(w http.ResponseWriter, r *http.Request) {
	parkings, err := s.deps.Parkings.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing parkings failed")
		return
	}
	writeJSON(w, http.StatusOK, parkings)
}

func (s *Server) handleSaveParking(w http.ResponseWriter, r *http.Request) {
	var req saveParkingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, "label is required")
		return
	}

	saved, err := s.deps.Parkings.Save(r.Context(), store.SavedParking{
		Label:   req.Label,
		Address: req.Address,
		Point:   geo.Point{Latitude: req.Lat, Longitude: req.Lon},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "saving parking failed")
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleDeleteParking(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Parkings.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no such parking")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "deleting parking failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNearbyParkings(w http.ResponseWriter, r *http.Request) {
	point := queryPoint(r, "lat", "lon")
	if point == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	radius, ok := queryFloat(r, "radius")
	if !ok || radius <= 0 {
		radius = 1000
	}
	writeJSON(w, http.StatusOK, s.deps.Index.Nearby(*point, radius))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v, ok := queryFloat(r, "limit"); ok && v > 0 {
		limit = int(v)
	}
	entries, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing history failed")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.History.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "clearing history failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func routeCacheKey(kind string, origin, dest geo.Point, mode routing.TravelMode) string {
	return fmt.Sprintf("%s:%.5f,%.5f:%.5f,%.5f:%s",
		kind, origin.Latitude, origin.Longitude, dest.Latitude, dest.Longitude, mode)
}
