package track

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"fleetglass.app/client"
	"fleetglass.app/geo"
	"fleetglass.app/store"
)

// State is the controller lifecycle.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
	StateStopping State = "stopping"
)

// ErrNotAuthenticated is returned by Start without a signed-in session.
var ErrNotAuthenticated = errors.New("tracking requires an authenticated session")

const writeTimeout = 10 * time.Second

// Controller drives the sampler while a session is live and writes
// each sample to the server keyed by the session identity. One
// controller, one writer: Start while active is a no-op, and sample
// handling is synchronous inside the sampler's loop, so at most one
// upsert is in flight at a time.
type Controller struct {
	sessions *SessionStore
	sampler  *geo.Sampler
	client   *client.Client

	// OnSample observes each persisted sample (the live view).
	OnSample func(store.Sample)
	// OnNotice observes the persistent user-visible notice.
	OnNotice func(string)

	mu       sync.Mutex
	state    State
	notice   string
	lastSeen *store.Sample
	unbind   func()
}

func NewController(sessions *SessionStore, sampler *geo.Sampler, c *client.Client) *Controller {
	ctrl := &Controller{
		sessions: sessions,
		sampler:  sampler,
		client:   c,
		state:    StateIdle,
	}
	// a session going anonymous always stops the writer
	ctrl.unbind = sessions.Subscribe(func(s Session) {
		if s.Status == StatusAnonymous {
			ctrl.Stop()
		}
	})
	return ctrl
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Notice returns the persistent notice, empty when none. It survives
// until the user re-initiates tracking.
func (c *Controller) Notice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

// LastSample returns the most recently persisted sample, if any.
func (c *Controller) LastSample() *store.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Start begins tracking for the current session. Idempotent: calling
// it while tracking is already live returns nil without starting a
// second writer. Starting again after a permission denial clears the
// notice — that is the user re-initiating.
func (c *Controller) Start() error {
	session := c.sessions.Current()
	if session.Status != StatusAuthenticated {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	if c.state == StateActive || c.state == StateStarting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStarting
	c.notice = ""

	// Start only spawns the loop, it never blocks, so the lock stays
	// held across it: a racing Stop or a terminal error from the fresh
	// loop cannot interleave with this transition. The sampler itself
	// also refuses a second loop, so there is never a second writer
	// for the same identity.
	c.sampler.Start(c.handleSample, c.handleError)
	c.state = StateActive
	c.mu.Unlock()

	log.Printf("[track] tracking started for %s", session.Identity.ID)
	return nil
}

// Stop halts tracking and releases the sampler, whatever state the
// controller is in. An upsert already in flight is allowed to finish;
// it cannot resurrect the session, it only lands one final sample.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateStopping {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	c.mu.Unlock()

	c.sampler.Stop()

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	log.Printf("[track] tracking stopped")
}

// Close stops tracking and detaches from the session store.
func (c *Controller) Close() {
	c.Stop()
	if c.unbind != nil {
		c.unbind()
		c.unbind = nil
	}
}

// handleSample runs inside the sampler loop, so the next capture does
// not begin until this write has completed or failed: per-user writes
// stay ordered.
func (c *Controller) handleSample(p geo.Position) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	sample, err := c.client.UpsertLocation(ctx, p.Latitude, p.Longitude)
	if err != nil {
		// a dropped write loses one sample, never the session
		log.Printf("[track] save location: %v", err)
		return
	}

	c.mu.Lock()
	c.lastSeen = sample
	c.mu.Unlock()
	if c.OnSample != nil {
		c.OnSample(*sample)
	}
}

func (c *Controller) handleError(err error) {
	if !geo.Terminal(err) {
		// transient: stay active, the next tick retries
		log.Printf("[track] sample: %v", err)
		return
	}

	// the sampler has already shut its loop down; mirror that here and
	// surface a notice that persists until the user starts again
	notice := "Location permission denied. Tracking is off until you re-enable it."
	c.mu.Lock()
	c.state = StateIdle
	c.notice = notice
	c.mu.Unlock()

	log.Printf("[track] %v", err)
	if c.OnNotice != nil {
		c.OnNotice(notice)
	}
}
