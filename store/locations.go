package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

// Sample is one geolocation reading. The store keeps at most one
// current sample per user: each upsert replaces the previous row.
type Sample struct {
	UserID     string    `json:"userId"`
	UserEmail  string    `json:"userEmail,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Valid reports whether the coordinates are in range.
func (sm Sample) Valid() bool {
	return sm.Latitude >= -90 && sm.Latitude <= 90 &&
		sm.Longitude >= -180 && sm.Longitude <= 180
}

// UpsertLocation writes the user's current sample, last write wins.
// Every committed write publishes a fresh full snapshot to subscribers.
func (s *Store) UpsertLocation(sm Sample) error {
	if !sm.Valid() {
		return fmt.Errorf("upsert location: coordinates out of range (%f, %f)", sm.Latitude, sm.Longitude)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO locations (user_id, user_email, latitude, longitude, captured_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   user_email = excluded.user_email,
		   latitude = excluded.latitude,
		   longitude = excluded.longitude,
		   captured_at = excluded.captured_at`,
		sm.UserID, sm.UserEmail, sm.Latitude, sm.Longitude, sm.CapturedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert location: %w", err)
	}

	s.publishLocked()
	return nil
}

// DeleteLocations removes every sample for the user. Deleting a user
// with no samples is a no-op, not an error.
func (s *Store) DeleteLocations(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM locations WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete locations: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.publishLocked()
	}
	return nil
}

// Location returns the user's current sample, or ErrNotFound.
func (s *Store) Location(userID string) (*Sample, error) {
	row := s.db.QueryRow(
		`SELECT user_id, user_email, latitude, longitude, captured_at
		 FROM locations WHERE user_id = ?`, userID)
	var sm Sample
	if err := row.Scan(&sm.UserID, &sm.UserEmail, &sm.Latitude, &sm.Longitude, &sm.CapturedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("location: %w", err)
	}
	return &sm, nil
}

// Locations returns the full current set, newest first.
func (s *Store) Locations() ([]Sample, error) {
	rows, err := s.db.Query(
		`SELECT user_id, user_email, latitude, longitude, captured_at
		 FROM locations ORDER BY captured_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("locations: %w", err)
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var sm Sample
		if err := rows.Scan(&sm.UserID, &sm.UserEmail, &sm.Latitude, &sm.Longitude, &sm.CapturedAt); err != nil {
			return nil, fmt.Errorf("locations: %w", err)
		}
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

// SubscribeLocations registers a live subscriber. The current set is
// delivered immediately, then again on every change.
func (s *Store) SubscribeLocations() (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := s.Locations()
	if err != nil {
		return nil, err
	}
	sub := s.broker.Subscribe()
	sub.push(snapshot)
	return sub, nil
}

// publishLocked reads the current set and hands it to the broker.
// Callers hold s.mu so subscribers observe writes in commit order.
func (s *Store) publishLocked() {
	snapshot, err := s.Locations()
	if err != nil {
		log.Printf("[store] snapshot after write: %v", err)
		return
	}
	s.broker.Publish(snapshot)
}
