package server

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"fleetglass.app/store"
)

// ActiveWindow is how recent a sample must be for its user to count as
// active. The comparison is strict: exactly five minutes old is
// inactive.
const ActiveWindow = 5 * time.Minute

// FleetEntry is one user's row in the fleet view.
type FleetEntry struct {
	UserID     string    `json:"userId"`
	Email      string    `json:"email,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	CapturedAt time.Time `json:"capturedAt"`
	Active     bool      `json:"active"`
}

// DeriveFleet recomputes the fleet from a raw snapshot: one entry per
// user (the most recent sample wins if the snapshot ever carries
// duplicates), filtered by a case-insensitive substring match on
// email, sorted by email for a stable render. Always returns a
// non-nil slice; an empty fleet is an empty render, not an error.
func DeriveFleet(samples []store.Sample, now time.Time, query string) []FleetEntry {
	query = strings.ToLower(query)

	latest := make(map[string]store.Sample, len(samples))
	for _, sm := range samples {
		if prev, ok := latest[sm.UserID]; ok && prev.CapturedAt.After(sm.CapturedAt) {
			continue
		}
		latest[sm.UserID] = sm
	}

	entries := []FleetEntry{}
	for _, sm := range latest {
		if query != "" && !strings.Contains(strings.ToLower(sm.UserEmail), query) {
			continue
		}
		entries = append(entries, FleetEntry{
			UserID:     sm.UserID,
			Email:      sm.UserEmail,
			Latitude:   sm.Latitude,
			Longitude:  sm.Longitude,
			CapturedAt: sm.CapturedAt,
			Active:     now.Sub(sm.CapturedAt) < ActiveWindow,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Email != entries[j].Email {
			return entries[i].Email < entries[j].Email
		}
		return entries[i].UserID < entries[j].UserID
	})
	return entries
}

// FleetHandler returns the derived fleet. ?q= filters by email.
func (s *Server) FleetHandler(w http.ResponseWriter, r *http.Request) {
	samples, err := s.store.Locations()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read locations")
		return
	}
	writeJSON(w, http.StatusOK, DeriveFleet(samples, time.Now(), r.URL.Query().Get("q")))
}
