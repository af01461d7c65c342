package server

import (
	"encoding/json"
	"net/http"
	"time"

	"fleetglass.app/store"
)

type locationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UpsertLocationHandler writes the caller's current position, keyed by
// the session identity. The server stamps the capture time.
func (s *Server) UpsertLocationHandler(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())

	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sample := store.Sample{
		UserID:     id.ID,
		UserEmail:  id.Email,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		CapturedAt: time.Now().UTC(),
	}
	if !sample.Valid() {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}
	if err := s.store.UpsertLocation(sample); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save location")
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// GetLocationHandler returns the caller's current sample.
func (s *Server) GetLocationHandler(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())

	sample, err := s.store.Location(id.ID)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "no location recorded")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read location")
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// DeleteLocationHandler removes every sample the caller owns. Absent
// rows are a success, not an error.
func (s *Server) DeleteLocationHandler(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())

	if err := s.store.DeleteLocations(id.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete location")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
