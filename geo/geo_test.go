package geo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFromCode(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{1, ErrPermissionDenied},
		{2, ErrUnavailable},
		{3, ErrTimeout},
		{99, ErrUnavailable},
	}
	for _, c := range cases {
		if got := FromCode(c.code); !errors.Is(got, c.want) {
			t.Errorf("FromCode(%d) = %v, want %v", c.code, got, c.want)
		}
	}
}

func TestClassify(t *testing.T) {
	if got := Classify(context.DeadlineExceeded); !errors.Is(got, ErrTimeout) {
		t.Errorf("deadline should classify as timeout, got %v", got)
	}
	if got := Classify(fmt.Errorf("wrapped: %w", ErrPermissionDenied)); !errors.Is(got, ErrPermissionDenied) {
		t.Errorf("wrapped denial must stay terminal, got %v", got)
	}
	if got := Classify(errors.New("gps on fire")); !errors.Is(got, ErrUnavailable) {
		t.Errorf("unrecognized errors are transient, got %v", got)
	}
	if Terminal(ErrTimeout) || Terminal(ErrUnavailable) {
		t.Error("only permission denial is terminal")
	}
	if !Terminal(ErrPermissionDenied) {
		t.Error("permission denial must be terminal")
	}
}

func TestSamplerDeliversSamples(t *testing.T) {
	var calls int32
	src := SourceFunc(func(ctx context.Context) (Position, error) {
		n := atomic.AddInt32(&calls, 1)
		return Position{Latitude: float64(n), Longitude: 1}, nil
	})

	s := NewSampler(src, 10*time.Millisecond)
	samples := make(chan Position, 16)
	ok := s.Start(func(p Position) { samples <- p }, func(error) {})
	if !ok {
		t.Fatal("first start must succeed")
	}
	defer s.Stop()

	for i := 0; i < 3; i++ {
		select {
		case p := <-samples:
			if p.Time.IsZero() {
				t.Error("samples must carry a capture time")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for samples")
		}
	}
}

func TestSamplerStartIsIdempotent(t *testing.T) {
	src := SourceFunc(func(ctx context.Context) (Position, error) {
		return Position{Latitude: 1, Longitude: 1}, nil
	})
	s := NewSampler(src, 10*time.Millisecond)
	defer s.Stop()

	if !s.Start(func(Position) {}, func(error) {}) {
		t.Fatal("first start must succeed")
	}
	if s.Start(func(Position) {}, func(error) {}) {
		t.Error("second start while running must be refused")
	}
}

func TestStopHaltsDelivery(t *testing.T) {
	release := make(chan struct{})
	src := SourceFunc(func(ctx context.Context) (Position, error) {
		select {
		case <-release:
			return Position{Latitude: 1, Longitude: 1}, nil
		case <-ctx.Done():
			return Position{}, ctx.Err()
		}
	})

	var delivered int32
	s := NewSampler(src, 10*time.Millisecond)
	s.Start(func(Position) { atomic.AddInt32(&delivered, 1) }, func(error) {})

	// the source is mid-fix; stop, then let the fix complete
	s.Stop()
	close(release)
	time.Sleep(50 * time.Millisecond)

	if n := atomic.LoadInt32(&delivered); n != 0 {
		t.Errorf("sample delivered after Stop: %d", n)
	}
	if s.Running() {
		t.Error("sampler still running after Stop")
	}
}

func TestTerminalErrorEndsLoop(t *testing.T) {
	var calls int32
	src := SourceFunc(func(ctx context.Context) (Position, error) {
		atomic.AddInt32(&calls, 1)
		return Position{}, ErrPermissionDenied
	})

	errs := make(chan error, 1)
	s := NewSampler(src, 5*time.Millisecond)
	s.Start(func(Position) {}, func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	select {
	case err := <-errs:
		if !errors.Is(err, ErrPermissionDenied) {
			t.Fatalf("got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}

	// loop must have ended after one attempt, not kept retrying
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("source called %d times after terminal error, want 1", n)
	}
	if s.Running() {
		t.Error("sampler still running after terminal error")
	}
}

func TestTransientErrorKeepsSampling(t *testing.T) {
	var calls int32
	src := SourceFunc(func(ctx context.Context) (Position, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return Position{}, ErrUnavailable
		}
		return Position{Latitude: 1, Longitude: 1}, nil
	})

	samples := make(chan Position, 1)
	s := NewSampler(src, 5*time.Millisecond)
	s.Start(func(p Position) {
		select {
		case samples <- p:
		default:
		}
	}, func(error) {})
	defer s.Stop()

	select {
	case <-samples:
	case <-time.After(time.Second):
		t.Fatal("sampling did not continue past a transient error")
	}
}

func TestOnceBoundsTheFix(t *testing.T) {
	src := SourceFunc(func(ctx context.Context) (Position, error) {
		<-ctx.Done()
		return Position{}, ctx.Err()
	})
	s := NewSampler(src, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Once(ctx)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("got %v, want timeout", err)
	}
}

func TestWatcherSourceUsesWatchLoop(t *testing.T) {
	w := &fakeWatcher{positions: make(chan Position, 4), errs: make(chan error, 1)}
	s := NewSampler(w, time.Hour) // interval only paces re-watch, unused here

	samples := make(chan Position, 4)
	s.Start(func(p Position) { samples <- p }, func(error) {})
	defer s.Stop()

	w.positions <- Position{Latitude: 3, Longitude: 4}
	select {
	case p := <-samples:
		if p.Latitude != 3 {
			t.Errorf("got %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("watch sample not delivered")
	}
}

func TestWatchStreamEndResumesSampling(t *testing.T) {
	w := &flakyWatcher{}
	s := NewSampler(w, 5*time.Millisecond)

	samples := make(chan Position, 1)
	errs := make(chan error, 1)
	s.Start(func(p Position) {
		select {
		case samples <- p:
		default:
		}
	}, func(err error) {
		select {
		case errs <- err:
		default:
		}
	})
	defer s.Stop()

	// the first session fails with a transient error and closes its
	// channels, the way a dropped gpsd connection does
	select {
	case err := <-errs:
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no error from the broken stream")
	}

	select {
	case p := <-samples:
		if p.Latitude != 9 {
			t.Errorf("got %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("sampling did not resume after the stream ended")
	}

	if !s.Running() {
		t.Error("sampler must stay running across a dropped stream")
	}
	if s.Start(func(Position) {}, func(error) {}) {
		t.Error("second start while running must be refused")
	}
}

func TestWatchTerminalErrorEndsLoop(t *testing.T) {
	w := &denyingWatcher{}
	s := NewSampler(w, 5*time.Millisecond)

	errs := make(chan error, 1)
	s.Start(func(Position) {}, func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	select {
	case err := <-errs:
		if !errors.Is(err, ErrPermissionDenied) {
			t.Fatalf("got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}

	// a denial must not be retried like a dropped stream
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&w.calls); n != 1 {
		t.Errorf("watch established %d times after terminal error, want 1", n)
	}
	if s.Running() {
		t.Error("sampler still running after terminal error")
	}
}

type fakeWatcher struct {
	positions chan Position
	errs      chan error
}

func (f *fakeWatcher) Current(ctx context.Context) (Position, error) {
	return Position{}, ErrUnavailable
}

func (f *fakeWatcher) Watch(ctx context.Context) (<-chan Position, <-chan error) {
	return f.positions, f.errs
}

// flakyWatcher fails its first session and serves fixes from the
// second, so a consumer must re-establish the watch to see any.
type flakyWatcher struct {
	mu    sync.Mutex
	calls int
}

func (f *flakyWatcher) Current(ctx context.Context) (Position, error) {
	return Position{}, ErrUnavailable
}

func (f *flakyWatcher) Watch(ctx context.Context) (<-chan Position, <-chan error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()

	positions := make(chan Position, 1)
	if first {
		errs := make(chan error)
		go func() {
			// unbuffered: the error is read before the close
			errs <- ErrUnavailable
			close(positions)
			close(errs)
		}()
		return positions, errs
	}
	positions <- Position{Latitude: 9, Longitude: 9}
	return positions, make(chan error)
}

type denyingWatcher struct {
	calls int32
}

func (d *denyingWatcher) Current(ctx context.Context) (Position, error) {
	return Position{}, ErrPermissionDenied
}

func (d *denyingWatcher) Watch(ctx context.Context) (<-chan Position, <-chan error) {
	atomic.AddInt32(&d.calls, 1)
	errs := make(chan error, 1)
	errs <- ErrPermissionDenied
	return make(chan Position), errs
}
