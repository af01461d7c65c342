// Package track runs the client-side tracking pipeline: the session
// store that views subscribe to, and the controller that moves
// position samples from the sampler into the server.
package track

import (
	"context"
	"log"
	"sync"

	"fleetglass.app/auth"
	"fleetglass.app/client"
)

// Status is the session lifecycle state.
type Status string

const (
	// StatusLoading means the session has not settled yet.
	StatusLoading       Status = "loading"
	StatusAuthenticated Status = "authenticated"
	StatusAnonymous     Status = "anonymous"
)

// Session is the settled authentication state. Identity is nil unless
// Status is authenticated; when it is set, the role is already
// resolved.
type Session struct {
	Identity *auth.Identity
	Status   Status
}

// SessionStore holds the one session for this process and notifies
// subscribers when it changes. Subscribers only ever observe settled
// states: notification happens after identity and role resolution.
type SessionStore struct {
	client *client.Client

	mu      sync.Mutex
	session Session
	subs    map[int]func(Session)
	nextSub int
}

func NewSessionStore(c *client.Client) *SessionStore {
	return &SessionStore{
		client:  c,
		session: Session{Status: StatusLoading},
		subs:    make(map[int]func(Session)),
	}
}

// Current returns the session as last settled.
func (s *SessionStore) Current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Subscribe registers fn and returns an unsubscribe func. If the
// session has already settled, fn is invoked immediately with the
// current state; a still-loading session is never delivered.
func (s *SessionStore) Subscribe(fn func(Session)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	current := s.session
	s.mu.Unlock()

	if current.Status != StatusLoading {
		fn(current)
	}
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Resume settles the session from an existing token, if any.
func (s *SessionStore) Resume(ctx context.Context) {
	if s.client.Token() == "" {
		s.settle(Session{Status: StatusAnonymous})
		return
	}
	id, err := s.client.Me(ctx)
	if err != nil {
		s.settle(Session{Status: StatusAnonymous})
		return
	}
	s.settle(Session{Identity: id, Status: StatusAuthenticated})
}

// Login signs in. The store settles (and subscribers fire) only after
// the server has resolved the identity and role together.
func (s *SessionStore) Login(ctx context.Context, email, password string) error {
	id, err := s.client.Login(ctx, email, password)
	if err != nil {
		s.settle(Session{Status: StatusAnonymous})
		return err
	}
	s.settle(Session{Identity: id, Status: StatusAuthenticated})
	return nil
}

// Register creates an account; it does not sign in.
func (s *SessionStore) Register(ctx context.Context, email, password string) (*auth.Identity, error) {
	return s.client.Register(ctx, email, password)
}

// Logout clears the session. The server deletes the caller's location
// records before the session is dropped; a failure there is logged and
// never blocks sign-out. Logging out while anonymous is a no-op.
func (s *SessionStore) Logout(ctx context.Context) {
	if s.Current().Status != StatusAuthenticated {
		return
	}
	if err := s.client.Logout(ctx); err != nil {
		log.Printf("[track] logout: %v", err)
	}
	s.settle(Session{Status: StatusAnonymous})
}

func (s *SessionStore) settle(next Session) {
	s.mu.Lock()
	s.session = next
	fns := make([]func(Session), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	// outside the lock so a subscriber may re-enter the store
	for _, fn := range fns {
		fn(next)
	}
}
