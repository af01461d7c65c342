package store

import (
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
)

// subscriber channel depth; a subscriber this far behind is dropped
const subscriptionBuffer = 16

// ErrSlowSubscriber terminates a subscription that stopped draining
// its channel.
var ErrSlowSubscriber = errors.New("subscriber too slow, dropped")

// ErrBrokerClosed terminates every subscription when the store shuts
// down.
var ErrBrokerClosed = errors.New("subscription closed by shutdown")

// Subscription is a live feed of full location snapshots. Each push is
// the complete current set, never a delta. Close is safe to call once;
// further calls are no-ops.
type Subscription struct {
	id string

	// C receives the full snapshot on every change.
	C chan []Sample
	// Err receives at most one terminal error, then C stops.
	Err chan error

	broker *Broker
	once   sync.Once
}

// Close disposes the subscription.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.broker.remove(sub.id)
	})
}

func (sub *Subscription) push(snapshot []Sample) bool {
	select {
	case sub.C <- snapshot:
		return true
	default:
		return false
	}
}

func (sub *Subscription) fail(err error) {
	select {
	case sub.Err <- err:
	default:
	}
}

// Broker fans location snapshots out to subscribers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]*Subscription)}
}

// Subscribe registers a new subscriber.
func (b *Broker) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.New().String(),
		C:      make(chan []Sample, subscriptionBuffer),
		Err:    make(chan error, 1),
		broker: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.fail(ErrBrokerClosed)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers the snapshot to every subscriber. A subscriber whose
// channel is full gets a terminal error and is dropped rather than
// holding up the writer.
func (b *Broker) Publish(snapshot []Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		if !sub.push(snapshot) {
			log.Printf("[store] dropping slow subscriber %s", id)
			sub.fail(ErrSlowSubscriber)
			delete(b.subs, id)
		}
	}
}

// Shutdown terminates every subscription.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		sub.fail(ErrBrokerClosed)
		delete(b.subs, id)
	}
	b.closed = true
}

func (b *Broker) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}
