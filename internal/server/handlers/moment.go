// internal/server/handlers/moment.go

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"momentmap/internal/domain/geo"
	"momentmap/internal/domain/moment"
	"momentmap/internal/service/filter"
	"momentmap/internal/service/rank"
)

// MomentHandler handles moment-related HTTP requests
type MomentHandler struct {
	catalog  moment.Catalog
	filters  *filter.Engine
	sorter   *rank.Sorter
	eventBus *nats.Conn
}

// NewMomentHandler creates a new moment handler
func NewMomentHandler(catalog moment.Catalog, eventBus *nats.Conn) *MomentHandler {
	return &MomentHandler{
		catalog:  catalog,
		filters:  filter.NewEngine(nil),
		sorter:   rank.NewSorter(nil),
		eventBus: eventBus,
	}
}

// ListMoments returns the moments passing the query's filters, ordered by
// the requested sort mode
func (h *MomentHandler) ListMoments(w http.ResponseWriter, r *http.Request) {
	f := parseFilter(r)
	userLoc := parseLocation(r)

	moments, err := h.catalog.ListMoments(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list moments", err)
		return
	}

	candidates := h.filters.Apply(moments, f, nil)
	f = f.Normalize()

	// Distance sorting silently degrades to candidate order without a user
	// location; the sorted flag tells the client which one it got
	ranked, sorted := h.sorter.Sort(candidates, f.Sort, userLoc, f.Order)

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"moments": ranked,
		"sorted":  sorted,
	})
}

// CreateMoment creates a new moment
func (h *MomentHandler) CreateMoment(w http.ResponseWriter, r *http.Request) {
	var m moment.Moment
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if m.Title == "" {
		respondWithError(w, http.StatusBadRequest, "Missing title", nil)
		return
	}
	if _, ok := m.StartTime(); !ok {
		respondWithError(w, http.StatusBadRequest, "Missing or malformed starts_at", nil)
		return
	}

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Visibility == "" {
		m.Visibility = moment.VisibilityPublic
	}
	m.CreatedAt = time.Now().UTC().Format(time.RFC3339)

	if err := h.catalog.SaveMoment(r.Context(), m); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to save moment", err)
		return
	}

	h.publishMomentEvent(m, "created")

	respondWithJSON(w, http.StatusCreated, m)
}

// GetMoment returns a specific moment by ID
func (h *MomentHandler) GetMoment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing moment ID", nil)
		return
	}

	m, err := h.catalog.GetMoment(r.Context(), id)
	if err != nil {
		if errors.Is(err, moment.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Moment not found", nil)
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to get moment", err)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, m)
}

// GetNearbyMoments returns moments near a specific location
func (h *MomentHandler) GetNearbyMoments(w http.ResponseWriter, r *http.Request) {
	latStr := r.URL.Query().Get("lat")
	lngStr := r.URL.Query().Get("lng")
	radiusStr := r.URL.Query().Get("radius")

	if latStr == "" || lngStr == "" {
		respondWithError(w, http.StatusBadRequest, "Missing location parameters", nil)
		return
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid latitude", err)
		return
	}

	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid longitude", err)
		return
	}

	// Default to 5km
	radius := 5.0
	if radiusStr != "" {
		radius, err = strconv.ParseFloat(radiusStr, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid radius", err)
			return
		}
	}

	location := geo.Location{Latitude: lat, Longitude: lng}

	moments, err := h.catalog.FindNearbyMoments(r.Context(), location, radius)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get nearby moments", err)
		return
	}

	respondWithJSON(w, http.StatusOK, moments)
}

// React increments one of a moment's popularity counters
func (h *MomentHandler) React(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing moment ID", nil)
		return
	}

	type reactionRequest struct {
		Type moment.Reaction `json:"type"`
	}

	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.catalog.IncrementCounter(r.Context(), id, req.Type); err != nil {
		if errors.Is(err, moment.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Moment not found", nil)
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to record reaction", err)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// publishMomentEvent publishes a moment event to the event bus
func (h *MomentHandler) publishMomentEvent(m moment.Moment, eventType string) {
	if h.eventBus == nil {
		return
	}

	data, err := json.Marshal(map[string]string{
		"id":    m.ID,
		"title": m.Title,
		"event": eventType,
	})
	if err != nil {
		return
	}

	topic := fmt.Sprintf("moment.%s", eventType)
	if err := h.eventBus.Publish(topic, data); err != nil {
		// Log error but continue
		fmt.Printf("Error publishing moment event: %v\n", err)
	}
}

// parseFilter builds a moment filter from query parameters
func parseFilter(r *http.Request) moment.Filter {
	q := r.URL.Query()

	f := moment.Filter{
		Category:   q.Get("category"),
		Time:       moment.TimeBucket(q.Get("time")),
		Visibility: moment.Visibility(q.Get("visibility")),
		Popularity: moment.PopularityBucket(q.Get("popularity")),
		Tag:        q.Get("tag"),
		Sort:       moment.SortMode(q.Get("sort")),
		Order:      moment.SortOrder(q.Get("order")),
	}

	if v, err := strconv.ParseBool(q.Get("free")); err == nil {
		f.FreeOnly = v
	}
	if v, err := strconv.ParseBool(q.Get("paid")); err == nil {
		f.PaidOnly = v
	}
	if v, err := strconv.ParseBool(q.Get("include_past")); err == nil {
		f.IncludePast = v
	}

	return f.Normalize()
}

// parseLocation reads an optional lat/lng pair from query parameters
func parseLocation(r *http.Request) *geo.Location {
	latStr := r.URL.Query().Get("lat")
	lngStr := r.URL.Query().Get("lng")
	if latStr == "" || lngStr == "" {
		return nil
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil
	}

	return &geo.Location{Latitude: lat, Longitude: lng}
}

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	response := map[string]string{"error": message}

	if err != nil && code >= 500 {
		fmt.Printf("HTTP %d: %s: %v\n", code, message, err)
	}

	jsonResponse, _ := json.Marshal(response)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(jsonResponse)
}
