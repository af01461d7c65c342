package geo

import (
	"context"
	"log"
	"sync"
	"time"
)

// Sampler drives a Source on a fixed cadence and hands each fix (or
// classified error) to callbacks. One sampler runs one loop: Start
// while running is a no-op, and after Stop no callback fires even if a
// fix was already in flight.
type Sampler struct {
	source   Source
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSampler(source Source, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sampler{source: source, interval: interval}
}

// Running reports whether the capture loop is live.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Once requests a single fresh fix, bounded by FixTimeout.
func (s *Sampler) Once(ctx context.Context) (Position, error) {
	ctx, cancel := context.WithTimeout(ctx, FixTimeout)
	defer cancel()
	pos, err := s.source.Current(ctx)
	if err != nil {
		return Position{}, Classify(err)
	}
	if pos.Time.IsZero() {
		pos.Time = time.Now()
	}
	return pos, nil
}

// Start begins producing samples. Returns false if the sampler is
// already running; the existing loop is left alone.
func (s *Sampler) Start(onSample func(Position), onError func(error)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	if w, ok := s.source.(Watcher); ok {
		go s.watchLoop(ctx, done, w, onSample, onError)
	} else {
		go s.pollLoop(ctx, done, onSample, onError)
	}
	return true
}

// Stop halts production and releases the underlying watch or timer.
// Safe to call when not running, and safe to call more than once. By
// the time Stop returns the loop has exited, so no further callbacks
// fire.
func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sampler) pollLoop(ctx context.Context, done chan struct{}, onSample func(Position), onError func(error)) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// immediate first fix, then the cadence
	if !s.capture(ctx, onSample, onError) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.capture(ctx, onSample, onError) {
				return
			}
		}
	}
}

// capture takes one fix and dispatches it. Returns false when the
// loop should end: cancellation or a terminal error.
func (s *Sampler) capture(ctx context.Context, onSample func(Position), onError func(error)) bool {
	fixCtx, cancel := context.WithTimeout(ctx, FixTimeout)
	pos, err := s.source.Current(fixCtx)
	cancel()

	// a fix that raced cancellation must not be delivered
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		err = Classify(err)
		onError(err)
		if Terminal(err) {
			s.detach()
			return false
		}
		return true
	}
	if pos.Time.IsZero() {
		pos.Time = time.Now()
	}
	onSample(pos)
	return true
}

// watchLoop consumes a push source. A stream that ends without a
// terminal error is transient, the way a dropped daemon connection or
// a failed dial is, so the watch is re-established after one interval
// instead of leaving a dead loop that still claims to be running.
func (s *Sampler) watchLoop(ctx context.Context, done chan struct{}, w Watcher, onSample func(Position), onError func(error)) {
	defer close(done)

	for {
		if !s.watchStream(ctx, w, onSample, onError) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

// watchStream drains one watch session. Returns true when the stream
// ended and a fresh one should be established, false when the loop is
// done: cancellation or a terminal error.
func (s *Sampler) watchStream(ctx context.Context, w Watcher, onSample func(Position), onError func(error)) bool {
	positions, errs := w.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return false
		case pos, ok := <-positions:
			if !ok {
				return ctx.Err() == nil
			}
			if ctx.Err() != nil {
				return false
			}
			if pos.Time.IsZero() {
				pos.Time = time.Now()
			}
			onSample(pos)
		case err, ok := <-errs:
			if !ok {
				// the source closed its error channel but may
				// still produce fixes
				errs = nil
				continue
			}
			err = Classify(err)
			onError(err)
			if Terminal(err) {
				s.detach()
				return false
			}
		}
	}
}

// detach clears the running state from inside a loop that is ending on
// its own (terminal error) rather than via Stop.
func (s *Sampler) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.done = nil
	}
	log.Printf("[geo] sampling stopped")
}
