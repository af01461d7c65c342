package store

import (
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertRoundTrip(t *testing.T) {
	s := testStore(t)

	want := Sample{
		UserID:     "u1",
		UserEmail:  "driver@example.com",
		Latitude:   51.5074,
		Longitude:  -0.1278,
		CapturedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := s.UpsertLocation(want); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.Location("u1")
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if got.Latitude != want.Latitude || got.Longitude != want.Longitude {
		t.Errorf("coordinates changed in round trip: got (%f, %f) want (%f, %f)",
			got.Latitude, got.Longitude, want.Latitude, want.Longitude)
	}
	if !got.CapturedAt.Equal(want.CapturedAt) {
		t.Errorf("capturedAt changed: got %v want %v", got.CapturedAt, want.CapturedAt)
	}
	if got.UserEmail != want.UserEmail {
		t.Errorf("email changed: got %q want %q", got.UserEmail, want.UserEmail)
	}
}

func TestUpsertReplacesNotAppends(t *testing.T) {
	s := testStore(t)

	for i := 0; i < 3; i++ {
		sm := Sample{UserID: "u1", Latitude: float64(i), Longitude: float64(i), CapturedAt: time.Now()}
		if err := s.UpsertLocation(sm); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	all, err := s.Locations()
	if err != nil {
		t.Fatalf("locations: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one current row per user, got %d", len(all))
	}
	if all[0].Latitude != 2 {
		t.Errorf("last write should win, got latitude %f", all[0].Latitude)
	}
}

func TestUpsertRejectsOutOfRange(t *testing.T) {
	s := testStore(t)

	bad := []Sample{
		{UserID: "u1", Latitude: 91, Longitude: 0},
		{UserID: "u1", Latitude: -91, Longitude: 0},
		{UserID: "u1", Latitude: 0, Longitude: 181},
		{UserID: "u1", Latitude: 0, Longitude: -181},
	}
	for _, sm := range bad {
		if err := s.UpsertLocation(sm); err == nil {
			t.Errorf("expected error for (%f, %f)", sm.Latitude, sm.Longitude)
		}
	}
}

func TestDeleteLocationsNoopWhenAbsent(t *testing.T) {
	s := testStore(t)

	if err := s.DeleteLocations("nobody"); err != nil {
		t.Fatalf("delete with no rows should be a no-op, got %v", err)
	}
}

func TestDeleteRemovesAllForUser(t *testing.T) {
	s := testStore(t)

	s.UpsertLocation(Sample{UserID: "u1", Latitude: 1, Longitude: 1, CapturedAt: time.Now()})
	s.UpsertLocation(Sample{UserID: "u2", Latitude: 2, Longitude: 2, CapturedAt: time.Now()})

	if err := s.DeleteLocations("u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Location("u1"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	all, _ := s.Locations()
	if len(all) != 1 || all[0].UserID != "u2" {
		t.Errorf("other users' rows must survive, got %+v", all)
	}
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	s := testStore(t)

	s.UpsertLocation(Sample{UserID: "u1", Latitude: 1, Longitude: 1, CapturedAt: time.Now()})

	sub, err := s.SubscribeLocations()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	// initial delivery carries the current set
	snap := <-sub.C
	if len(snap) != 1 {
		t.Fatalf("initial snapshot: got %d rows, want 1", len(snap))
	}

	s.UpsertLocation(Sample{UserID: "u2", Latitude: 2, Longitude: 2, CapturedAt: time.Now()})
	snap = waitSnapshot(t, sub)
	if len(snap) != 2 {
		t.Fatalf("after second upsert: got %d rows, want 2", len(snap))
	}

	// deletes publish too, and the deleted row must not linger
	s.DeleteLocations("u1")
	snap = waitSnapshot(t, sub)
	if len(snap) != 1 || snap[0].UserID != "u2" {
		t.Fatalf("after delete: got %+v", snap)
	}
}

func TestSubscribeCloseIsIdempotent(t *testing.T) {
	s := testStore(t)

	sub, err := s.SubscribeLocations()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Close()
	sub.Close()
}

func TestSlowSubscriberGetsTerminalError(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	for i := 0; i <= subscriptionBuffer; i++ {
		b.Publish([]Sample{})
	}

	select {
	case err := <-sub.Err:
		if err != ErrSlowSubscriber {
			t.Fatalf("got %v, want ErrSlowSubscriber", err)
		}
	default:
		t.Fatal("expected a terminal error for a saturated subscriber")
	}
}

func TestRoleDefaultsToUser(t *testing.T) {
	s := testStore(t)

	role, err := s.Role("missing")
	if err != nil {
		t.Fatalf("role: %v", err)
	}
	if role != RoleUser {
		t.Errorf("absent role record must read as user, got %q", role)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := testStore(t)

	u := &User{ID: "u1", Email: "a@b.c", PasswordHash: "x", Role: RoleUser, CreatedAt: time.Now()}
	if err := s.CreateUser(u); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &User{ID: "u2", Email: "a@b.c", PasswordHash: "y", Role: RoleUser, CreatedAt: time.Now()}
	if err := s.CreateUser(dup); err != ErrEmailTaken {
		t.Fatalf("got %v, want ErrEmailTaken", err)
	}
}

func TestSetRole(t *testing.T) {
	s := testStore(t)

	if err := s.SetRole("missing", RoleAdmin); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	u := &User{ID: "u1", Email: "a@b.c", PasswordHash: "x", Role: RoleUser, CreatedAt: time.Now()}
	s.CreateUser(u)
	if err := s.SetRole("u1", RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	role, _ := s.Role("u1")
	if role != RoleAdmin {
		t.Errorf("got %q, want admin", role)
	}
}

func waitSnapshot(t *testing.T, sub *Subscription) []Sample {
	t.Helper()
	select {
	case snap := <-sub.C:
		return snap
	case err := <-sub.Err:
		t.Fatalf("subscription failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return nil
}
