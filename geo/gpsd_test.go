package geo

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeGPSD serves a scripted gpsd session over an in-memory pipe.
func fakeGPSD(t *testing.T, lines []string) *GPSD {
	t.Helper()
	return &GPSD{
		Dial: func(ctx context.Context, addr string) (net.Conn, error) {
			client, srv := net.Pipe()
			go func() {
				defer srv.Close()
				// wait for the ?WATCH command before reporting
				r := bufio.NewReader(srv)
				if _, err := r.ReadString('\n'); err != nil {
					return
				}
				for _, line := range lines {
					if _, err := srv.Write([]byte(line + "\n")); err != nil {
						return
					}
				}
				// hold the conn open until the client hangs up
				r.ReadString('\n')
			}()
			return client, nil
		},
	}
}

func TestGPSDWatchDeliversFixes(t *testing.T) {
	g := fakeGPSD(t, []string{
		`{"class":"VERSION","release":"3.25"}`,
		`{"class":"TPV","mode":1}`, // no fix yet, must be skipped
		`{"class":"TPV","mode":3,"lat":51.5074,"lon":-0.1278,"time":"2026-03-01T12:00:00Z"}`,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	positions, errs := g.Watch(ctx)
	select {
	case pos := <-positions:
		if pos.Latitude != 51.5074 || pos.Longitude != -0.1278 {
			t.Errorf("got %+v", pos)
		}
		if pos.Time != time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) {
			t.Errorf("report time not used: %v", pos.Time)
		}
	case err := <-errs:
		t.Fatalf("watch failed: %v", err)
	case <-ctx.Done():
		t.Fatal("no fix delivered")
	}
}

func TestGPSDCurrentReturnsFirstFix(t *testing.T) {
	g := fakeGPSD(t, []string{
		`{"class":"TPV","mode":2,"lat":1.5,"lon":2.5}`,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pos, err := g.Current(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if pos.Latitude != 1.5 || pos.Longitude != 2.5 {
		t.Errorf("got %+v", pos)
	}
}

func TestGPSDDialFailureIsTransient(t *testing.T) {
	g := &GPSD{
		Dial: func(ctx context.Context, addr string) (net.Conn, error) {
			return nil, &net.OpError{Op: "dial", Err: context.DeadlineExceeded}
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := g.Current(ctx)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "gpsd") {
		t.Errorf("error should name the source: %v", err)
	}
	if Terminal(Classify(err)) {
		t.Error("a dial failure must stay transient")
	}
}
